package stream

import (
	"context"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

const (
	// DefaultSimulatedDelay paces simulated chunks when the request has no
	// stream delay of its own.
	DefaultSimulatedDelay = 50 * time.Millisecond

	// simulatedGroups is the target number of chunks a replay is split into.
	simulatedGroups = 10
)

// Simulator replays a complete FinalResponse through stream callbacks as a
// short sequence of simulated chunks, so consumers render a fallback
// response the same way as a live stream.
type Simulator struct {
	delay time.Duration
}

// NewSimulator creates a Simulator that waits delay between chunks.
func NewSimulator(delay time.Duration) *Simulator {
	if delay < 0 {
		delay = 0
	}
	return &Simulator{delay: delay}
}

// WithDelay returns a copy of the simulator using delay when it is positive.
func (s *Simulator) WithDelay(delay time.Duration) *Simulator {
	if delay <= 0 {
		return s
	}
	return &Simulator{delay: delay}
}

// Replay splits resp.Content into word groups and emits them through
// cb.OnChunk, then calls cb.OnComplete with resp itself. The concatenated
// chunk content always equals resp.Content, and exactly the last chunk is
// terminal. Only the terminal chunk carries the response metadata.
//
// For two or more words Replay emits one chunk per SplitWords group. Text of
// fewer than two words is emitted as its single group followed by an empty
// terminal chunk, so one content chunk always precedes the terminal one.
//
// Replay returns ctx.Err() if ctx is cancelled part way, in which case
// OnComplete is not called.
func (s *Simulator) Replay(ctx context.Context, resp *llm.FinalResponse, cb Callbacks) error {
	groups := SplitWords(resp.Content)

	// A response of fewer than two words still streams one content chunk
	// ahead of an empty terminal one.
	var contents []string
	if countWords(resp.Content) < 2 {
		contents = append(groups, "")
	} else {
		contents = groups
	}

	for i, content := range contents {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk := llm.StreamChunk{
			Content:   content,
			ChunkID:   i,
			Simulated: true,
		}
		last := i == len(contents)-1
		if last {
			usage := resp.Usage
			chunk.IsFinal = true
			chunk.Model = resp.Model
			chunk.Provider = resp.Provider
			chunk.Usage = &usage
			chunk.Cost = resp.Cost
			chunk.ResponseTimeMs = resp.ResponseTimeMs
			chunk.Timestamp = resp.Timestamp
		}

		if cb.OnChunk != nil {
			cb.OnChunk(chunk)
		}

		if !last {
			if err := s.sleep(ctx); err != nil {
				return err
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if cb.OnComplete != nil {
		cb.OnComplete(resp)
	}
	return nil
}

func (s *Simulator) sleep(ctx context.Context) error {
	if s.delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(s.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SplitWords splits text into at most ten groups of consecutive words.
// Whitespace is preserved: each group carries the whitespace that follows
// its words, and any leading whitespace belongs to the first group, so the
// groups concatenate back to text exactly.
//
// For W words the group size is ceil(W/10) and the group count is
// ceil(W/size). Text without words is returned as a single group, and the
// empty string yields no groups. Replay adds a terminal chunk for W < 2, so
// its chunk count differs from the group count there.
func SplitWords(text string) []string {
	starts := wordStarts(text)
	if len(starts) == 0 {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	w := len(starts)
	size := (w + simulatedGroups - 1) / simulatedGroups

	groups := make([]string, 0, (w+size-1)/size)
	for i := 0; i < w; i += size {
		start := starts[i]
		if i == 0 {
			start = 0
		}
		end := len(text)
		if i+size < w {
			end = starts[i+size]
		}
		groups = append(groups, text[start:end])
	}
	return groups
}

func countWords(text string) int {
	return len(wordStarts(text))
}

// wordStarts returns the byte offset of every maximal run of non-space runes.
func wordStarts(text string) []int {
	var starts []int
	inWord := false
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		space := unicode.IsSpace(r)
		if !space && !inWord {
			starts = append(starts, i)
		}
		inWord = !space
		i += size
	}
	return starts
}
