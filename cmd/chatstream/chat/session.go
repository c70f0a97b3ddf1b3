package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"time"

	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/eventstream"
	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/stream"
)

// eventSink receives finished turn events. Enqueue must not block.
type eventSink interface {
	Enqueue(event *eventstream.TurnEvent) bool
}

// session is one conversation: the message history and the settings used
// to build each turn's request.
type session struct {
	orchestrator *stream.Orchestrator
	events       eventSink
	source       eventstream.EventSource

	chat     config.ChatConfig
	configID int
	fallback bool
	noStream bool

	out    io.Writer
	errOut io.Writer
	logger *slog.Logger

	history []llm.Message
}

// turnResult is the outcome of a turn that produced an answer.
type turnResult struct {
	resp     *llm.FinalResponse
	fellBack bool
	elapsed  time.Duration
}

// reset drops the conversation, keeping the system prompt.
func (s *session) reset() {
	s.history = s.history[:0]
	if s.chat.SystemPrompt != "" {
		s.history = append(s.history, llm.NewTextMessage(llm.RoleSystem, s.chat.SystemPrompt))
	}
}

// request builds the request for a new user prompt on top of the history.
func (s *session) request(prompt string) llm.StreamRequest {
	req := llm.StreamRequest{
		ConfigID: s.configID,
		Messages: append(slices.Clone(s.history), llm.NewTextMessage(llm.RoleUser, prompt)),
		Model:    s.chat.Model,
	}
	if s.chat.Temperature > 0 {
		temperature := s.chat.Temperature
		req.Temperature = &temperature
	}
	if s.chat.MaxTokens > 0 {
		maxTokens := s.chat.MaxTokens
		req.MaxTokens = &maxTokens
	}
	return req.WithRequestID()
}

// turn sends prompt and prints the answer. The history only grows when the
// turn produced an answer.
func (s *session) turn(ctx context.Context, prompt string) error {
	req := s.request(prompt)

	var (
		res *turnResult
		err error
	)
	if s.noStream {
		res, err = s.send(ctx, req)
	} else {
		res, err = s.stream(ctx, req)
	}
	if err != nil {
		s.logger.Debug("chat turn failed", "request_id", req.RequestID, "error", err)
		if errors.Is(err, context.Canceled) {
			fmt.Fprintf(s.errOut, "\n  %s\n\n", cliui.DimStyle.Render("Cancelled."))
		} else {
			fmt.Fprintf(s.errOut, "\n  %s %s\n\n", cliui.FailMark, cliui.ErrorMessage(err))
		}
		return err
	}

	s.history = append(s.history,
		llm.NewTextMessage(llm.RoleUser, prompt),
		llm.NewTextMessage(llm.RoleAssistant, res.resp.Content),
	)
	s.footer(res)
	return nil
}

// stream runs a turn over the orchestrator, printing chunks as they arrive.
func (s *session) stream(ctx context.Context, req llm.StreamRequest) (*turnResult, error) {
	observer := eventstream.NewObserver(s.source, req)
	start := time.Now()

	var (
		resp      *llm.FinalResponse
		serr      *stream.StreamError
		printed   bool
		live      bool
		replaying bool
	)
	cb := stream.Callbacks{
		OnChunk: func(chunk llm.StreamChunk) {
			if chunk.Simulated && !replaying {
				replaying = true
				if printed {
					fmt.Fprintln(s.out)
					s.interrupted()
					printed = false
				}
			}
			if s.chat.Markdown {
				return
			}
			if !printed {
				fmt.Fprint(s.out, cliui.AssistantPrompt)
				printed = true
			}
			live = live || !chunk.Simulated
			fmt.Fprint(s.out, chunk.Content)
		},
		OnError: func(e *stream.StreamError) {
			serr = e
		},
		OnComplete: func(r *llm.FinalResponse) {
			resp = r
		},
	}

	h := s.orchestrator.StreamWithFallback(ctx, req, observer.Wrap(cb), s.fallback)
	h.Wait()

	s.publish(observer.Finish(h.FellBack()))

	if printed {
		fmt.Fprintln(s.out)
	}
	switch {
	case serr != nil:
		return nil, serr
	case resp == nil:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, context.Canceled
	}

	switch {
	case s.chat.Markdown:
		s.printAnswer(resp.Content)
	case h.FellBack() && !replaying:
		// Fallback without replay delivers only the final response.
		if live {
			s.interrupted()
		}
		s.printAnswer(resp.Content)
	}
	return &turnResult{resp: resp, fellBack: h.FellBack(), elapsed: time.Since(start)}, nil
}

// interrupted tells the user the partial live answer is being replaced.
func (s *session) interrupted() {
	fmt.Fprintf(s.out, "\n  %s %s\n",
		cliui.WarnStyle.Render("!"),
		cliui.DimStyle.Render("Stream interrupted, showing the full answer:"),
	)
}

// send runs a turn over the non-streaming endpoint only.
func (s *session) send(ctx context.Context, req llm.StreamRequest) (*turnResult, error) {
	observer := eventstream.NewObserver(s.source, req)
	cb := observer.Wrap(stream.Callbacks{})
	start := time.Now()

	var resp *llm.FinalResponse
	err := cliui.Step(s.errOut, "Waiting for the gateway", func() error {
		var err error
		resp, err = s.orchestrator.Send(ctx, req)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var serr *stream.StreamError
		if errors.As(err, &serr) {
			cb.OnError(serr)
		}
		s.publish(observer.Finish(true))
		return nil, err
	}

	cb.OnComplete(resp)
	s.publish(observer.Finish(true))

	s.printAnswer(resp.Content)
	return &turnResult{resp: resp, fellBack: true, elapsed: time.Since(start)}, nil
}

// printAnswer prints a complete answer, rendered as markdown when enabled.
func (s *session) printAnswer(content string) {
	if !s.chat.Markdown {
		fmt.Fprintf(s.out, "%s%s\n", cliui.AssistantPrompt, content)
		return
	}

	rendered, err := cliui.RenderMarkdown(content, outputFile(s.out))
	if err != nil {
		s.logger.Debug("markdown rendering failed", "error", err)
	}
	fmt.Fprint(s.out, rendered)
}

// footer prints the model, usage and timing of an answered turn.
func (s *session) footer(res *turnResult) {
	var parts []string
	if res.resp.Model != "" {
		parts = append(parts, res.resp.Model)
	}
	if total := res.resp.Usage.TotalTokens; total > 0 {
		parts = append(parts, fmt.Sprintf("%d tokens", total))
	}
	parts = append(parts, cliui.FormatDuration(res.elapsed))
	if res.fellBack {
		parts = append(parts, "non-streaming")
	}

	fmt.Fprintf(s.out, "  %s\n\n", cliui.DimStyle.Render(strings.Join(parts, " · ")))
}

func (s *session) publish(event *eventstream.TurnEvent) {
	if event == nil {
		return
	}
	if !s.events.Enqueue(event) {
		s.logger.Debug("turn event dropped", "request_id", event.RequestMeta.RequestID)
	}
}

// repl reads prompts from in until EOF or /exit. Ctrl+C cancels the turn in
// flight without ending the session.
func (s *session) repl(ctx context.Context, in io.Reader) error {
	fmt.Fprintf(s.out, "\n  %s %s\n", cliui.KeyStyle.Render("Gateway:"), cliui.ValueStyle.Render(s.source.Gateway))
	if s.chat.Model != "" {
		fmt.Fprintf(s.out, "  %s %s\n", cliui.KeyStyle.Render("Model:"), cliui.NameStyle.Render(s.chat.Model))
	}
	fmt.Fprintf(s.out, "\n  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /reset clears history, /exit or Ctrl+D quits."))

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(s.out, cliui.UserPrompt)
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit":
			fmt.Fprintln(s.out)
			return nil
		case "/reset":
			s.reset()
			fmt.Fprintf(s.out, "  %s\n\n", cliui.DimStyle.Render("History cleared."))
			continue
		}

		// Failed turns are reported by turn and leave the history untouched.
		turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		_ = s.turn(turnCtx, input)
		stop()

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(s.out)
	return nil
}

// outputFile returns the file behind w for terminal detection. Writers that
// are not files are treated like a pipe.
func outputFile(w io.Writer) *os.File {
	if f, ok := w.(*os.File); ok {
		return f
	}
	return nil
}
