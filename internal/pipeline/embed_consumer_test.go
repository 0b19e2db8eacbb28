package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/voxline-ai/voxline-backend/internal/providers/embedding"
	"github.com/voxline-ai/voxline-backend/internal/quota"
	"github.com/voxline-ai/voxline-backend/pkg/db/models"
	"github.com/voxline-ai/voxline-backend/pkg/enums"
	"github.com/voxline-ai/voxline-backend/pkg/outbox/payloads"
)

func newEmbedFixture(t *testing.T, items *fakeItems, chunks *fakeChunks, provider *fakeVectorizer, usage *fakeUsage) (*EmbedConsumer, *fakeEmitter) {
	t.Helper()
	emitter := &fakeEmitter{}
	consumer, err := NewEmbedConsumer(EmbedConsumerParams{
		Items:       items,
		Chunks:      chunks,
		Provider:    provider,
		Emitter:     emitter,
		DB:          fakeTxRunner{},
		Usage:       usage,
		Idempotency: &fakeIdempotency{},
		Logger:      newTestLogger(),
		BatchSize:   2,
	})
	if err != nil {
		t.Fatalf("build consumer: %v", err)
	}
	return consumer, emitter
}

func unembeddedChunks(itemID uuid.UUID, n int) []models.Chunk {
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{
			ID:          uuid.New(),
			MediaItemID: itemID,
			Position:    i,
			Text:        fmt.Sprintf("span %d", i),
			TokenCount:  250,
		}
	}
	return chunks
}

func TestEmbedConsumerEmbedsAndCompletes(t *testing.T) {
	item := uploadedItem(enums.MediaItemStatusEmbedding)
	item.DurationSeconds = 300
	items := &fakeItems{item: item}
	chunks := &fakeChunks{total: 5, unembedded: unembeddedChunks(item.ID, 5)}
	provider := &fakeVectorizer{}
	usage := &fakeUsage{estimate: quota.CostEstimate{EmbeddingCents: 1}}
	consumer, emitter := newEmbedFixture(t, items, chunks, provider, usage)

	body := stageMessage(t, payloads.EmbeddingRequestedEvent{MediaItemID: item.ID, TenantID: item.TenantID})
	result := consumer.handle(context.Background(), body)
	if !result.ack {
		t.Fatalf("expected ack, got %+v", result)
	}

	// 5 chunks at batch size 2 means 3 provider calls.
	if provider.calls != 3 {
		t.Errorf("provider called %d times, want 3", provider.calls)
	}
	if len(chunks.embeddings) != 5 {
		t.Errorf("stored %d embeddings, want 5", len(chunks.embeddings))
	}
	if !items.completed {
		t.Error("item was not marked completed")
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType != enums.EventMediaCompleted {
		t.Fatalf("emitted %v, want one media_completed", emitter.eventTypes())
	}
	completedPayload, ok := emitter.events[0].Data.(payloads.MediaCompletedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", emitter.events[0].Data)
	}
	if completedPayload.ChunkCount != 5 || completedPayload.DurationSeconds != 300 {
		t.Errorf("completed payload %+v", completedPayload)
	}
	if len(usage.recorded) != 1 || usage.recorded[0].EmbeddingCostCents != 1 {
		t.Errorf("usage recorded %+v", usage.recorded)
	}
}

func TestEmbedConsumerAlreadyCompletedItem(t *testing.T) {
	item := uploadedItem(enums.MediaItemStatusCompleted)
	items := &fakeItems{item: item}
	provider := &fakeVectorizer{}
	consumer, emitter := newEmbedFixture(t, items, &fakeChunks{}, provider, &fakeUsage{})

	body := stageMessage(t, payloads.EmbeddingRequestedEvent{MediaItemID: item.ID, TenantID: item.TenantID})
	result := consumer.handle(context.Background(), body)
	if !result.ack {
		t.Fatal("redelivery for a completed item should ack")
	}
	if provider.calls != 0 {
		t.Errorf("provider called for a completed item")
	}
	if len(emitter.events) != 0 {
		t.Errorf("emitted %v", emitter.eventTypes())
	}
}

func TestEmbedConsumerNoChunksLeftStillFinalizes(t *testing.T) {
	item := uploadedItem(enums.MediaItemStatusEmbedding)
	items := &fakeItems{item: item}
	chunks := &fakeChunks{total: 3}
	usage := &fakeUsage{}
	consumer, emitter := newEmbedFixture(t, items, chunks, &fakeVectorizer{}, usage)

	body := stageMessage(t, payloads.EmbeddingRequestedEvent{MediaItemID: item.ID, TenantID: item.TenantID})
	result := consumer.handle(context.Background(), body)
	if !result.ack {
		t.Fatalf("expected ack, got %+v", result)
	}
	if !items.completed {
		t.Error("fully embedded item was not finalized on redelivery")
	}
	if len(emitter.events) != 1 {
		t.Errorf("emitted %v", emitter.eventTypes())
	}
	// No fresh embeddings means no usage to record.
	if len(usage.recorded) != 0 {
		t.Errorf("usage recorded without new embeddings")
	}
}

func TestEmbedConsumerDuplicateDeliveryEmbedsOnce(t *testing.T) {
	item := uploadedItem(enums.MediaItemStatusEmbedding)
	item.DurationSeconds = 120
	items := &fakeItems{item: item}
	chunks := &fakeChunks{total: 2, unembedded: unembeddedChunks(item.ID, 2)}
	provider := &fakeVectorizer{}
	consumer, emitter := newEmbedFixture(t, items, chunks, provider, &fakeUsage{})

	body := stageMessage(t, payloads.EmbeddingRequestedEvent{MediaItemID: item.ID, TenantID: item.TenantID})
	if result := consumer.handle(context.Background(), body); !result.ack {
		t.Fatalf("first delivery: %+v", result)
	}
	calls := provider.calls

	if result := consumer.handle(context.Background(), body); !result.ack {
		t.Fatalf("second delivery: %+v", result)
	}
	if provider.calls != calls {
		t.Errorf("duplicate delivery hit the provider: %d -> %d", calls, provider.calls)
	}
	if len(emitter.events) != 1 {
		t.Errorf("emitted %v, want one media_completed", emitter.eventTypes())
	}
}

func TestEmbedConsumerTransientProviderError(t *testing.T) {
	item := uploadedItem(enums.MediaItemStatusEmbedding)
	items := &fakeItems{item: item}
	chunks := &fakeChunks{total: 2, unembedded: unembeddedChunks(item.ID, 2)}
	provider := &fakeVectorizer{err: &embedding.Error{Status: 429, Message: "rate limited", Retryable: true}}
	consumer, _ := newEmbedFixture(t, items, chunks, provider, &fakeUsage{})

	body := stageMessage(t, payloads.EmbeddingRequestedEvent{MediaItemID: item.ID, TenantID: item.TenantID})
	result := consumer.handle(context.Background(), body)
	if !result.nack {
		t.Fatal("transient provider errors must redeliver")
	}
	if items.failedMessage != "" {
		t.Errorf("item marked failed on transient error: %q", items.failedMessage)
	}
}

func TestEmbedConsumerTerminalProviderError(t *testing.T) {
	item := uploadedItem(enums.MediaItemStatusEmbedding)
	items := &fakeItems{item: item}
	chunks := &fakeChunks{total: 2, unembedded: unembeddedChunks(item.ID, 2)}
	provider := &fakeVectorizer{err: &embedding.Error{Status: 400, Message: "bad input", Retryable: false}}
	consumer, emitter := newEmbedFixture(t, items, chunks, provider, &fakeUsage{})

	body := stageMessage(t, payloads.EmbeddingRequestedEvent{MediaItemID: item.ID, TenantID: item.TenantID})
	result := consumer.handle(context.Background(), body)
	if !result.ack {
		t.Fatal("terminal provider errors must not redeliver")
	}
	if items.item.Status != enums.MediaItemStatusFailed {
		t.Errorf("item status %s, want failed", items.item.Status)
	}
	if len(emitter.events) != 0 {
		t.Errorf("emitted %v", emitter.eventTypes())
	}
}
