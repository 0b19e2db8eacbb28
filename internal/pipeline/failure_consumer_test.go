package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/voxline-ai/voxline-backend/pkg/enums"
	"github.com/voxline-ai/voxline-backend/pkg/outbox/payloads"
)

func newFailureFixture(t *testing.T, items *fakeItems) (*FailureConsumer, *fakeEmitter) {
	t.Helper()
	emitter := &fakeEmitter{}
	consumer, err := NewFailureConsumer(FailureConsumerParams{
		Items:   items,
		Emitter: emitter,
		DB:      fakeTxRunner{},
		Logger:  newTestLogger(),
	})
	if err != nil {
		t.Fatalf("build consumer: %v", err)
	}
	return consumer, emitter
}

func TestFailureConsumerMarksItemFailed(t *testing.T) {
	item := uploadedItem(enums.MediaItemStatusTranscribing)
	items := &fakeItems{item: item}
	consumer, emitter := newFailureFixture(t, items)

	body := stageMessage(t, payloads.TranscriptionRequestedEvent{MediaItemID: item.ID, TenantID: item.TenantID})
	attrs := map[string]string{"event_type": string(enums.EventTranscriptionRequested)}
	result := consumer.handle(context.Background(), body, attrs)
	if !result.ack {
		t.Fatalf("expected ack, got %+v", result)
	}

	if item.Status != enums.MediaItemStatusFailed {
		t.Errorf("item status %s, want failed", item.Status)
	}
	if items.failedCategory != enums.ErrorCategoryRetriesExhausted {
		t.Errorf("failed category %s, want retries_exhausted", items.failedCategory)
	}
	if !strings.Contains(items.failedMessage, string(enums.EventTranscriptionRequested)) {
		t.Errorf("failure message %q does not name the exhausted event", items.failedMessage)
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType != enums.EventMediaFailed {
		t.Fatalf("emitted %v, want one media_failed", emitter.eventTypes())
	}
	failedPayload, ok := emitter.events[0].Data.(payloads.MediaFailedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", emitter.events[0].Data)
	}
	if failedPayload.ErrorCategory != enums.ErrorCategoryRetriesExhausted {
		t.Errorf("payload category %s", failedPayload.ErrorCategory)
	}
}

func TestFailureConsumerSkipsTerminalItems(t *testing.T) {
	item := uploadedItem(enums.MediaItemStatusCompleted)
	items := &fakeItems{item: item}
	consumer, emitter := newFailureFixture(t, items)

	body := stageMessage(t, payloads.EmbeddingRequestedEvent{MediaItemID: item.ID, TenantID: item.TenantID})
	result := consumer.handle(context.Background(), body, map[string]string{"event_type": string(enums.EventEmbeddingRequested)})
	if !result.ack {
		t.Fatal("dead letters for terminal items should ack")
	}
	if item.Status != enums.MediaItemStatusCompleted {
		t.Errorf("terminal item mutated to %s", item.Status)
	}
	if len(emitter.events) != 0 {
		t.Errorf("emitted %v", emitter.eventTypes())
	}
}

func TestFailureConsumerUnknownItem(t *testing.T) {
	items := &fakeItems{item: uploadedItem(enums.MediaItemStatusPending)}
	consumer, _ := newFailureFixture(t, items)

	other := uploadedItem(enums.MediaItemStatusPending)
	body := stageMessage(t, payloads.ChunkingRequestedEvent{MediaItemID: other.ID, TenantID: other.TenantID})
	result := consumer.handle(context.Background(), body, map[string]string{"event_type": string(enums.EventChunkingRequested)})
	if !result.ack {
		t.Fatal("dead letters for deleted items should ack")
	}
}

func TestStageForEventType(t *testing.T) {
	cases := map[string]string{
		string(enums.EventTranscriptionRequested): stageTranscribe,
		string(enums.EventChunkingRequested):      stageProcess,
		string(enums.EventEmbeddingRequested):     stageEmbed,
		"something_else":                          "unknown",
	}
	for eventType, want := range cases {
		if got := stageFor(eventType); got != want {
			t.Errorf("stageFor(%q) = %q, want %q", eventType, got, want)
		}
	}
}
