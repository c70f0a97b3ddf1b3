package eventstream_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/eventstream"
	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/stream"
)

var _ = Describe("Observer", func() {
	var (
		observer *eventstream.Observer
		req      llm.StreamRequest
	)

	BeforeEach(func() {
		req = llm.StreamRequest{
			RequestID: "req-42",
			ConfigID:  1,
			Messages:  []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
		}
		observer = eventstream.NewObserver(eventstream.EventSource{Client: "test"}, req)
	})

	It("forwards callbacks and builds a completion event on the stream path", func() {
		var got []string
		var final *llm.FinalResponse
		cb := observer.Wrap(stream.Callbacks{
			OnChunk:    func(c llm.StreamChunk) { got = append(got, c.Content) },
			OnComplete: func(r *llm.FinalResponse) { final = r },
		})

		cb.OnChunk(llm.StreamChunk{Content: "a", ChunkID: 0})
		cb.OnChunk(llm.StreamChunk{Content: "b", ChunkID: 1, IsFinal: true})
		resp := &llm.FinalResponse{Content: "ab"}
		cb.OnComplete(resp)

		Expect(got).To(Equal([]string{"a", "b"}))
		Expect(final).To(BeIdenticalTo(resp))

		e := observer.Finish(false)
		Expect(e).NotTo(BeNil())
		Expect(e.EventType).To(Equal(eventstream.EventTypeTurnCompleted))
		Expect(e.RequestMeta.RequestID).To(Equal("req-42"))
		Expect(e.RequestMeta.Path).To(Equal(eventstream.PathStream))
		Expect(e.RequestMeta.ChunkCount).To(Equal(2))
		Expect(e.Turn.Response).To(BeIdenticalTo(resp))
		Expect(e.Turn.Request.Messages).To(Equal(req.Messages))
	})

	It("marks turns with simulated chunks as fallback", func() {
		cb := observer.Wrap(stream.Callbacks{})
		cb.OnChunk(llm.StreamChunk{Content: "ok", Simulated: true, IsFinal: true})
		cb.OnComplete(&llm.FinalResponse{Content: "ok"})

		Expect(observer.Finish(false).RequestMeta.Path).To(Equal(eventstream.PathFallback))
	})

	It("marks turns the handle reports as fallen back", func() {
		cb := observer.Wrap(stream.Callbacks{})
		cb.OnComplete(&llm.FinalResponse{Content: "ok"})

		e := observer.Finish(true)
		Expect(e.RequestMeta.Path).To(Equal(eventstream.PathFallback))
		Expect(e.RequestMeta.ChunkCount).To(BeZero())
	})

	It("builds a failure event", func() {
		var seen *stream.StreamError
		cb := observer.Wrap(stream.Callbacks{OnError: func(e *stream.StreamError) { seen = e }})
		serr := stream.NewStreamError(stream.KindConnection, "dropped")
		cb.OnError(serr)

		Expect(seen).To(BeIdenticalTo(serr))
		e := observer.Finish(false)
		Expect(e.EventType).To(Equal(eventstream.EventTypeTurnFailed))
		Expect(e.Error.Kind).To(Equal(stream.KindConnection))
	})

	It("builds nothing for a cancelled turn", func() {
		cb := observer.Wrap(stream.Callbacks{})
		cb.OnChunk(llm.StreamChunk{Content: "par"})
		Expect(observer.Finish(false)).To(BeNil())
	})
})
