package enums

import "fmt"

// RecoveryAction is the repair chosen by the stuck-item decision matrix.
type RecoveryAction string

const (
	RecoveryActionNone            RecoveryAction = "none"
	RecoveryActionMarkFailed      RecoveryAction = "mark_failed"
	RecoveryActionRetryProcessing RecoveryAction = "retry_processing"
	RecoveryActionRetryEmbeddings RecoveryAction = "retry_embeddings"
	RecoveryActionFixStatus       RecoveryAction = "fix_status"
)

var validRecoveryActions = []RecoveryAction{
	RecoveryActionNone,
	RecoveryActionMarkFailed,
	RecoveryActionRetryProcessing,
	RecoveryActionRetryEmbeddings,
	RecoveryActionFixStatus,
}

// String returns the literal string for the action.
func (r RecoveryAction) String() string {
	return string(r)
}

// IsValid reports whether the action is known.
func (r RecoveryAction) IsValid() bool {
	for _, candidate := range validRecoveryActions {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRecoveryAction converts raw input into a RecoveryAction.
func ParseRecoveryAction(value string) (RecoveryAction, error) {
	for _, candidate := range validRecoveryActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid recovery action %q", value)
}
