package enums

import "fmt"

// SourceKind identifies the origin of an ingested media item.
type SourceKind string

const (
	SourceKindUpload  SourceKind = "upload"
	SourceKindYouTube SourceKind = "youtube"
	SourceKindEmbed   SourceKind = "embed"
)

var validSourceKinds = []SourceKind{
	SourceKindUpload,
	SourceKindYouTube,
	SourceKindEmbed,
}

// String returns the literal string for the kind.
func (s SourceKind) String() string {
	return string(s)
}

// IsValid reports whether the kind is known.
func (s SourceKind) IsValid() bool {
	for _, candidate := range validSourceKinds {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSourceKind converts raw input into a SourceKind.
func ParseSourceKind(value string) (SourceKind, error) {
	for _, candidate := range validSourceKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid source kind %q", value)
}
