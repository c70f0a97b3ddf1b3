package eventstream_test

import (
	"encoding/json"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/eventstream"
	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/stream"
)

var _ = Describe("Event", func() {
	source := eventstream.EventSource{Client: "chatstream", Gateway: "localhost:8000", ConfigID: 1}
	req := &llm.StreamRequest{
		RequestID: "req-1",
		ConfigID:  1,
		Messages:  []llm.Message{llm.NewTextMessage(llm.RoleUser, "hello")},
	}

	It("marshals a completed TurnEvent with expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		event := eventstream.NewTurnEvent(source, eventstream.TurnRequestMeta{
			RequestID:   "req-1",
			Path:        eventstream.PathStream,
			StartedAt:   now.Add(-2 * time.Second),
			CompletedAt: now,
			DurationMs:  2000,
			ChunkCount:  3,
		}, llm.ConversationTurn{
			Request:  req,
			Response: &llm.FinalResponse{Content: "hi", Model: "m"},
		}, nil)

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKeyWithValue("event_type", eventstream.EventTypeTurnCompleted))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("source"))
		Expect(got).To(HaveKey("request_meta"))
		Expect(got).To(HaveKey("turn"))
		Expect(got).NotTo(HaveKey("error"))
		Expect(event.Key()).To(Equal("req-1"))
		Expect(strings.HasPrefix(event.EventID, "evt_")).To(BeTrue())
	})

	It("builds a failure event from a classified error", func() {
		serr := stream.NewStreamError(stream.KindQuotaExceeded, "out of quota")
		event := eventstream.NewTurnEvent(source, eventstream.TurnRequestMeta{RequestID: "req-1"}, llm.ConversationTurn{Request: req}, serr)

		Expect(event.EventType).To(Equal(eventstream.EventTypeTurnFailed))
		Expect(event.Error).NotTo(BeNil())
		Expect(event.Error.Kind).To(Equal(stream.KindQuotaExceeded))
		Expect(event.Error.ShouldFallback).To(BeFalse())
		Expect(event.Turn.Response).To(BeNil())
	})

	It("gives each event a unique id", func() {
		a := eventstream.NewTurnEvent(source, eventstream.TurnRequestMeta{}, llm.ConversationTurn{}, nil)
		b := eventstream.NewTurnEvent(source, eventstream.TurnRequestMeta{}, llm.ConversationTurn{}, nil)
		Expect(a.EventID).NotTo(Equal(b.EventID))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeTurnCompleted).To(Equal("chatstream.turn.completed"))
		Expect(eventstream.EventTypeTurnFailed).To(Equal("chatstream.turn.failed"))
	})

	It("provides ErrNilTurnEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilTurnEvent).To(MatchError("nil turn event"))
	})
})
