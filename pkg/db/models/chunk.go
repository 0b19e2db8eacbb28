package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// EmbeddingDimensions is the fixed dimensionality of chunk embeddings.
const EmbeddingDimensions = 1536

// Chunk is a transcript segment with an optional vector embedding.
// Positions are contiguous and unique per media item; a chunk with a
// populated embedding is never re-embedded.
type Chunk struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MediaItemID uuid.UUID `gorm:"column:media_item_id;type:uuid;not null;uniqueIndex:ux_chunks_item_position"`
	Position    int       `gorm:"column:position;not null;uniqueIndex:ux_chunks_item_position"`

	Text       string  `gorm:"column:text;type:text;not null"`
	TokenCount int     `gorm:"column:token_count;not null;default:0"`
	StartSec   float64 `gorm:"column:start_sec;not null;default:0"`
	EndSec     float64 `gorm:"column:end_sec;not null;default:0"`

	Embedding *pgvector.Vector `gorm:"column:embedding;type:vector(1536)"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// HasEmbedding reports whether the chunk's vector has been computed.
func (c *Chunk) HasEmbedding() bool {
	return c.Embedding != nil
}
