package enums

import "fmt"

// MediaItemStatus describes the lifecycle state of a media item moving
// through the processing pipeline.
type MediaItemStatus string

const (
	MediaItemStatusPending      MediaItemStatus = "pending"
	MediaItemStatusUploading    MediaItemStatus = "uploading"
	MediaItemStatusTranscribing MediaItemStatus = "transcribing"
	MediaItemStatusProcessing   MediaItemStatus = "processing"
	MediaItemStatusEmbedding    MediaItemStatus = "embedding"
	MediaItemStatusCompleted    MediaItemStatus = "completed"
	MediaItemStatusFailed       MediaItemStatus = "failed"
)

var validMediaItemStatuses = []MediaItemStatus{
	MediaItemStatusPending,
	MediaItemStatusUploading,
	MediaItemStatusTranscribing,
	MediaItemStatusProcessing,
	MediaItemStatusEmbedding,
	MediaItemStatusCompleted,
	MediaItemStatusFailed,
}

// String returns the literal string for the status.
func (m MediaItemStatus) String() string {
	return string(m)
}

// IsValid reports whether the status is known.
func (m MediaItemStatus) IsValid() bool {
	for _, candidate := range validMediaItemStatuses {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further pipeline work happens in this status.
func (m MediaItemStatus) IsTerminal() bool {
	return m == MediaItemStatusCompleted || m == MediaItemStatusFailed
}

// Progress returns the fixed progress percentage exposed to status pollers.
func (m MediaItemStatus) Progress() int {
	switch m {
	case MediaItemStatusPending:
		return 0
	case MediaItemStatusUploading:
		return 10
	case MediaItemStatusTranscribing:
		return 30
	case MediaItemStatusProcessing:
		return 50
	case MediaItemStatusEmbedding:
		return 80
	case MediaItemStatusCompleted, MediaItemStatusFailed:
		return 100
	default:
		return 0
	}
}

// StageDescription returns the human-readable label for the current stage.
func (m MediaItemStatus) StageDescription() string {
	switch m {
	case MediaItemStatusPending:
		return "waiting for processing to start"
	case MediaItemStatusUploading:
		return "receiving source media"
	case MediaItemStatusTranscribing:
		return "generating transcript"
	case MediaItemStatusProcessing:
		return "splitting transcript into chunks"
	case MediaItemStatusEmbedding:
		return "computing embeddings"
	case MediaItemStatusCompleted:
		return "processing complete"
	case MediaItemStatusFailed:
		return "processing failed"
	default:
		return "unknown"
	}
}

// ParseMediaItemStatus converts raw input into a MediaItemStatus.
func ParseMediaItemStatus(value string) (MediaItemStatus, error) {
	for _, candidate := range validMediaItemStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid media item status %q", value)
}

// NonTerminalMediaItemStatuses returns the statuses the stuck-item scanner
// considers in-flight.
func NonTerminalMediaItemStatuses() []MediaItemStatus {
	statuses := make([]MediaItemStatus, 0, len(validMediaItemStatuses))
	for _, candidate := range validMediaItemStatuses {
		if !candidate.IsTerminal() {
			statuses = append(statuses, candidate)
		}
	}
	return statuses
}
