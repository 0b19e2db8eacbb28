package pipeline

import "github.com/voxline-ai/voxline-backend/pkg/enums"

// legalTransitions is the forward-only transition table. `failed` is reachable
// from every non-terminal state; `pending` may jump straight to `processing`
// when the source carried captions at ingestion time.
var legalTransitions = map[enums.MediaItemStatus][]enums.MediaItemStatus{
	enums.MediaItemStatusPending: {
		enums.MediaItemStatusUploading,
		enums.MediaItemStatusTranscribing,
		enums.MediaItemStatusProcessing,
		enums.MediaItemStatusFailed,
	},
	enums.MediaItemStatusUploading: {
		enums.MediaItemStatusTranscribing,
		enums.MediaItemStatusFailed,
	},
	enums.MediaItemStatusTranscribing: {
		enums.MediaItemStatusProcessing,
		enums.MediaItemStatusFailed,
	},
	enums.MediaItemStatusProcessing: {
		enums.MediaItemStatusEmbedding,
		enums.MediaItemStatusFailed,
	},
	enums.MediaItemStatusEmbedding: {
		enums.MediaItemStatusCompleted,
		enums.MediaItemStatusFailed,
	},
	enums.MediaItemStatusCompleted: {},
	enums.MediaItemStatusFailed:    {},
}

// CanTransition reports whether a stage handler may move an item from one
// status to another. Recovery re-entry is not covered here; see
// CanRecoverTo.
func CanTransition(from, to enums.MediaItemStatus) bool {
	for _, candidate := range legalTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// CanRecoverTo reports whether the recovery engine may re-enter an in-flight
// stage from the given status. Only `completed` is off limits.
func CanRecoverTo(from, to enums.MediaItemStatus) bool {
	if from == enums.MediaItemStatusCompleted {
		return false
	}
	switch to {
	case enums.MediaItemStatusTranscribing,
		enums.MediaItemStatusProcessing,
		enums.MediaItemStatusEmbedding:
		return true
	default:
		return false
	}
}
