package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/voxline-ai/voxline-backend/internal/media"
	"github.com/voxline-ai/voxline-backend/internal/providers/transcription"
	"github.com/voxline-ai/voxline-backend/internal/quota"
	"github.com/voxline-ai/voxline-backend/pkg/db/models"
	"github.com/voxline-ai/voxline-backend/pkg/enums"
	"github.com/voxline-ai/voxline-backend/pkg/logger"
	"github.com/voxline-ai/voxline-backend/pkg/outbox"

	"github.com/rs/zerolog"
)

func newTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.ErrorLevel, Output: io.Discard})
}

func stageMessage(t *testing.T, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return body
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeEmitter struct {
	events []outbox.DomainEvent
	err    error
}

func (f *fakeEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEmitter) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	return f.Emit(ctx, tx, event)
}

func (f *fakeEmitter) eventTypes() []enums.OutboxEventType {
	types := make([]enums.OutboxEventType, len(f.events))
	for i, event := range f.events {
		types[i] = event.EventType
	}
	return types
}

type fakeUsage struct {
	recorded []quota.Deltas
	estimate quota.CostEstimate
	err      error
}

func (f *fakeUsage) RecordUsage(_ context.Context, _ uuid.UUID, deltas quota.Deltas) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, deltas)
	return nil
}

func (f *fakeUsage) EstimateCost(float64, int64, int64) quota.CostEstimate {
	return f.estimate
}

type fakeSlots struct {
	acquired bool
	err      error
	releases int
}

func (f *fakeSlots) AcquireSlot(context.Context, string, int64, time.Duration) (bool, error) {
	return f.acquired, f.err
}

func (f *fakeSlots) ReleaseSlot(context.Context, string) error {
	f.releases++
	return nil
}

type fakeIdempotency struct {
	processed map[string]bool
	checkErr  error
	deletes   int
}

func (f *fakeIdempotency) key(consumer string, eventID uuid.UUID) string {
	return consumer + ":" + eventID.String()
}

func (f *fakeIdempotency) CheckAndMarkProcessed(_ context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	if f.checkErr != nil {
		return false, f.checkErr
	}
	if f.processed == nil {
		f.processed = map[string]bool{}
	}
	key := f.key(consumer, eventID)
	if f.processed[key] {
		return true, nil
	}
	f.processed[key] = true
	return false, nil
}

func (f *fakeIdempotency) Delete(_ context.Context, consumer string, eventID uuid.UUID) error {
	f.deletes++
	delete(f.processed, f.key(consumer, eventID))
	return nil
}

type fakeItems struct {
	media.ItemRepository
	item *models.MediaItem

	transitions      []string
	denyTransitions  bool
	savedTranscript  string
	savedLanguage    string
	savedDuration    float64
	failedMessage    string
	failedCategory   enums.ErrorCategory
	completed        bool
	markCompletedErr error
}

func (f *fakeItems) WithTx(*gorm.DB) media.ItemRepository { return f }

func (f *fakeItems) FindByIDInternal(_ context.Context, id uuid.UUID) (*models.MediaItem, error) {
	if f.item == nil || f.item.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return f.item, nil
}

func (f *fakeItems) TransitionStatus(_ context.Context, _ uuid.UUID, from []enums.MediaItemStatus, to enums.MediaItemStatus) (bool, error) {
	if f.denyTransitions {
		return false, nil
	}
	for _, candidate := range from {
		if f.item.Status == candidate {
			f.transitions = append(f.transitions, fmt.Sprintf("%s->%s", f.item.Status, to))
			f.item.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeItems) SaveTranscript(_ context.Context, _ uuid.UUID, transcript, language string, durationSeconds float64) error {
	f.savedTranscript = transcript
	f.savedLanguage = language
	f.savedDuration = durationSeconds
	return nil
}

func (f *fakeItems) MarkFailed(_ context.Context, _ uuid.UUID, message string, category enums.ErrorCategory) error {
	f.failedMessage = message
	f.failedCategory = category
	f.item.Status = enums.MediaItemStatusFailed
	return nil
}

func (f *fakeItems) MarkCompleted(_ context.Context, _ uuid.UUID, _ time.Time) (bool, error) {
	if f.markCompletedErr != nil {
		return false, f.markCompletedErr
	}
	f.completed = true
	f.item.Status = enums.MediaItemStatusCompleted
	return true, nil
}

type fakeChunks struct {
	media.ChunkRepository
	inserted   []models.Chunk
	unembedded []models.Chunk
	embeddings map[uuid.UUID]pgvector.Vector
	total      int64
}

func (f *fakeChunks) WithTx(*gorm.DB) media.ChunkRepository { return f }

func (f *fakeChunks) BulkInsert(_ context.Context, chunks []models.Chunk) error {
	f.inserted = append(f.inserted, chunks...)
	f.total += int64(len(chunks))
	return nil
}

func (f *fakeChunks) CountByItem(context.Context, uuid.UUID) (int64, error) {
	return f.total, nil
}

func (f *fakeChunks) CountUnembedded(context.Context, uuid.UUID) (int64, error) {
	return int64(len(f.unembedded)), nil
}

func (f *fakeChunks) ListUnembedded(_ context.Context, _ uuid.UUID, limit int) ([]models.Chunk, error) {
	if limit > len(f.unembedded) {
		limit = len(f.unembedded)
	}
	batch := make([]models.Chunk, limit)
	copy(batch, f.unembedded[:limit])
	return batch, nil
}

func (f *fakeChunks) SetEmbedding(_ context.Context, chunkID uuid.UUID, embedding pgvector.Vector) error {
	if f.embeddings == nil {
		f.embeddings = map[uuid.UUID]pgvector.Vector{}
	}
	f.embeddings[chunkID] = embedding
	kept := make([]models.Chunk, 0, len(f.unembedded))
	for _, chunk := range f.unembedded {
		if chunk.ID != chunkID {
			kept = append(kept, chunk)
		}
	}
	f.unembedded = kept
	return nil
}

type fakeTranscriber struct {
	result *transcription.Result
	err    error
	calls  int
	source transcription.Source
}

func (f *fakeTranscriber) Transcribe(_ context.Context, source transcription.Source, _ string) (*transcription.Result, error) {
	f.calls++
	f.source = source
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeVectorizer struct {
	err   error
	calls int
}

func (f *fakeVectorizer) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = make([]float32, models.EmbeddingDimensions)
		vectors[i][0] = float32(i + 1)
	}
	return vectors, nil
}

func uploadedItem(status enums.MediaItemStatus) *models.MediaItem {
	key := "media/" + uuid.NewString() + ".mp3"
	return &models.MediaItem{
		ID:         uuid.New(),
		TenantID:   uuid.New(),
		Title:      "weekly standup",
		SourceKind: enums.SourceKindUpload,
		StorageKey: &key,
		Status:     status,
	}
}
