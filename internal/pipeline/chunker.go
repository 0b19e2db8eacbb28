package pipeline

import (
	"strings"

	"github.com/google/uuid"

	"github.com/voxline-ai/voxline-backend/internal/providers/transcription"
	"github.com/voxline-ai/voxline-backend/pkg/db/models"
)

// estimateTokens approximates the token count of a span. The usual heuristic
// for English text is roughly 4 tokens per 3 words.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return (words*4 + 2) / 3
}

// SplitTranscript cuts a transcript into chunks of about tokenTarget tokens
// with contiguous positions. Segment timing is preserved when segments are
// available; otherwise the plain text is split by words and chunks carry no
// timing.
func SplitTranscript(itemID uuid.UUID, text string, segments []transcription.Segment, tokenTarget int) []models.Chunk {
	if tokenTarget <= 0 {
		tokenTarget = 300
	}
	if len(segments) > 0 {
		return splitSegments(itemID, segments, tokenTarget)
	}
	return splitPlainText(itemID, text, tokenTarget)
}

func splitSegments(itemID uuid.UUID, segments []transcription.Segment, tokenTarget int) []models.Chunk {
	var chunks []models.Chunk
	var parts []string
	var tokens int
	startSec := segments[0].Start
	endSec := segments[0].End

	flush := func() {
		if len(parts) == 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(parts, " "))
		if text == "" {
			parts, tokens = nil, 0
			return
		}
		chunks = append(chunks, models.Chunk{
			MediaItemID: itemID,
			Position:    len(chunks),
			Text:        text,
			TokenCount:  tokens,
			StartSec:    startSec,
			EndSec:      endSec,
		})
		parts, tokens = nil, 0
	}

	for _, segment := range segments {
		segText := strings.TrimSpace(segment.Text)
		if segText == "" {
			continue
		}
		if len(parts) == 0 {
			startSec = segment.Start
		}
		parts = append(parts, segText)
		tokens += estimateTokens(segText)
		endSec = segment.End
		if tokens >= tokenTarget {
			flush()
		}
	}
	flush()
	return chunks
}

func splitPlainText(itemID uuid.UUID, text string, tokenTarget int) []models.Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	// tokenTarget tokens ~= tokenTarget * 3/4 words
	wordsPerChunk := (tokenTarget * 3) / 4
	if wordsPerChunk <= 0 {
		wordsPerChunk = 1
	}

	var chunks []models.Chunk
	for start := 0; start < len(words); start += wordsPerChunk {
		end := start + wordsPerChunk
		if end > len(words) {
			end = len(words)
		}
		span := strings.Join(words[start:end], " ")
		chunks = append(chunks, models.Chunk{
			MediaItemID: itemID,
			Position:    len(chunks),
			Text:        span,
			TokenCount:  estimateTokens(span),
		})
	}
	return chunks
}
