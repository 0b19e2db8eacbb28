package recovery

import (
	"time"

	"github.com/voxline-ai/voxline-backend/pkg/enums"
)

// MissingTranscriptMessage is the terminal failure recorded when an item can
// never be repaired because transcription never produced output.
const MissingTranscriptMessage = "no viable recovery action (missing transcript)"

// Decide maps the observable state of a stuck item to a repair action. The
// matrix walks the pipeline backwards: whatever artifact is missing first
// names the stage to redo.
func Decide(hasTranscript, hasChunks, hasEmbeddings bool) enums.RecoveryAction {
	switch {
	case !hasTranscript:
		return enums.RecoveryActionMarkFailed
	case !hasChunks:
		return enums.RecoveryActionRetryProcessing
	case !hasEmbeddings:
		return enums.RecoveryActionRetryEmbeddings
	default:
		return enums.RecoveryActionFixStatus
	}
}

// isEligible gates a recovery attempt. Force bypasses both the attempt budget
// and the cool-down between attempts, never the completed-item guard.
func isEligible(now time.Time, lastAttempt *time.Time, attempts, maxAttempts int, minRetryInterval time.Duration, force bool) bool {
	if force {
		return true
	}
	if attempts >= maxAttempts {
		return false
	}
	if lastAttempt != nil && now.Sub(*lastAttempt) < minRetryInterval {
		return false
	}
	return true
}
