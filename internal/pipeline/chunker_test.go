package pipeline

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/voxline-ai/voxline-backend/internal/providers/transcription"
)

func TestSplitTranscriptFromSegments(t *testing.T) {
	itemID := uuid.New()
	segments := []transcription.Segment{
		{Start: 0, End: 4, Text: strings.Repeat("alpha ", 30)},
		{Start: 4, End: 9, Text: strings.Repeat("beta ", 30)},
		{Start: 9, End: 15, Text: strings.Repeat("gamma ", 30)},
	}

	// 30 words per segment is ~40 tokens, so a 70-token target packs two
	// segments per chunk.
	chunks := SplitTranscript(itemID, "", segments, 70)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	first := chunks[0]
	if first.MediaItemID != itemID {
		t.Errorf("chunk bound to %s, want %s", first.MediaItemID, itemID)
	}
	if first.Position != 0 || chunks[1].Position != 1 {
		t.Errorf("positions not contiguous: %d, %d", first.Position, chunks[1].Position)
	}
	if first.StartSec != 0 || first.EndSec != 9 {
		t.Errorf("first chunk spans [%v, %v], want [0, 9]", first.StartSec, first.EndSec)
	}
	if chunks[1].StartSec != 9 || chunks[1].EndSec != 15 {
		t.Errorf("second chunk spans [%v, %v], want [9, 15]", chunks[1].StartSec, chunks[1].EndSec)
	}
	if first.TokenCount < 70 {
		t.Errorf("first chunk token count %d below target", first.TokenCount)
	}
}

func TestSplitTranscriptSkipsEmptySegments(t *testing.T) {
	chunks := SplitTranscript(uuid.New(), "", []transcription.Segment{
		{Start: 0, End: 1, Text: "   "},
		{Start: 1, End: 2, Text: "hello world"},
	}, 300)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "hello world" {
		t.Errorf("chunk text %q", chunks[0].Text)
	}
	if chunks[0].StartSec != 1 {
		t.Errorf("chunk start %v, want 1 (empty segment must not anchor timing)", chunks[0].StartSec)
	}
}

func TestSplitTranscriptPlainText(t *testing.T) {
	itemID := uuid.New()
	words := make([]string, 500)
	for i := range words {
		words[i] = "word"
	}

	// 300-token target means 225 words per chunk: 225 + 225 + 50.
	chunks := SplitTranscript(itemID, strings.Join(words, " "), nil, 300)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.Position != i {
			t.Errorf("chunk %d has position %d", i, chunk.Position)
		}
		if chunk.StartSec != 0 || chunk.EndSec != 0 {
			t.Errorf("plain-text chunk %d carries timing", i)
		}
	}
	if got := len(strings.Fields(chunks[2].Text)); got != 50 {
		t.Errorf("tail chunk has %d words, want 50", got)
	}
}

func TestSplitTranscriptEmptyInput(t *testing.T) {
	if chunks := SplitTranscript(uuid.New(), "   ", nil, 300); chunks != nil {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}
