package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateMediaItem   OutboxAggregateType = "media_item"
	AggregateUsageRecord OutboxAggregateType = "usage_record"
	AggregateTenant      OutboxAggregateType = "tenant"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateMediaItem,
	AggregateUsageRecord,
	AggregateTenant,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres. Stage-advancement
// events drive the pipeline consumers; lifecycle events notify downstream.
type OutboxEventType string

const (
	EventTranscriptionRequested OutboxEventType = "transcription_requested"
	EventChunkingRequested      OutboxEventType = "chunking_requested"
	EventEmbeddingRequested     OutboxEventType = "embedding_requested"
	EventMediaCompleted         OutboxEventType = "media_completed"
	EventMediaFailed            OutboxEventType = "media_failed"
	EventRecoveryPerformed      OutboxEventType = "recovery_performed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventTranscriptionRequested,
	EventChunkingRequested,
	EventEmbeddingRequested,
	EventMediaCompleted,
	EventMediaFailed,
	EventRecoveryPerformed,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason explains why an outbox row was dead-lettered.
type OutboxDLQErrorReason string

const (
	DLQReasonNonRetryable     OutboxDLQErrorReason = "non_retryable"
	DLQReasonAttemptsExceeded OutboxDLQErrorReason = "attempts_exceeded"
)

// IsValid reports whether the reason is known.
func (r OutboxDLQErrorReason) IsValid() bool {
	return r == DLQReasonNonRetryable || r == DLQReasonAttemptsExceeded
}
