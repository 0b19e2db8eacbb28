package enums

import "fmt"

// ErrorCategory classifies the failure stored on a media item when it
// reaches the failed status.
type ErrorCategory string

const (
	ErrorCategoryValidation       ErrorCategory = "validation"
	ErrorCategoryQuota            ErrorCategory = "quota"
	ErrorCategoryTransient        ErrorCategory = "transient"
	ErrorCategoryUnsupportedInput ErrorCategory = "unsupported_input"
	ErrorCategoryRetriesExhausted ErrorCategory = "retries_exhausted"
	ErrorCategoryRecovery         ErrorCategory = "recovery"
)

var validErrorCategories = []ErrorCategory{
	ErrorCategoryValidation,
	ErrorCategoryQuota,
	ErrorCategoryTransient,
	ErrorCategoryUnsupportedInput,
	ErrorCategoryRetriesExhausted,
	ErrorCategoryRecovery,
}

// String returns the literal string for the category.
func (e ErrorCategory) String() string {
	return string(e)
}

// IsValid reports whether the category is known.
func (e ErrorCategory) IsValid() bool {
	for _, candidate := range validErrorCategories {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseErrorCategory converts raw input into an ErrorCategory.
func ParseErrorCategory(value string) (ErrorCategory, error) {
	for _, candidate := range validErrorCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid error category %q", value)
}
