package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/voxline-ai/voxline-backend/pkg/db/models"
	"github.com/voxline-ai/voxline-backend/pkg/logger"
	"gorm.io/gorm"
)

const deletedMediaRetentionDays = 7

type DeletedMediaPurgeJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	MediaRepo     deletedMediaRepo
	ChunkRepo     purgeChunkRepo
	RetentionDays int
}

type deletedMediaRepo interface {
	ListDeletedBefore(ctx context.Context, cutoff time.Time) ([]models.MediaItem, error)
	PurgeWithTx(tx *gorm.DB, id uuid.UUID) error
}

type purgeChunkRepo interface {
	DeleteByItemTx(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) (int64, error)
}

// NewDeletedMediaPurgeJob hard-deletes soft-deleted media items, chunks
// first, once the retention window has passed.
func NewDeletedMediaPurgeJob(params DeletedMediaPurgeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.MediaRepo == nil {
		return nil, fmt.Errorf("media repository required")
	}
	if params.ChunkRepo == nil {
		return nil, fmt.Errorf("chunk repository required")
	}
	retention := params.RetentionDays
	if retention <= 0 {
		retention = deletedMediaRetentionDays
	}
	return &deletedMediaPurgeJob{
		logg:      params.Logger,
		db:        params.DB,
		media:     params.MediaRepo,
		chunks:    params.ChunkRepo,
		retention: retention,
		now:       time.Now,
	}, nil
}

type deletedMediaPurgeJob struct {
	logg      *logger.Logger
	db        txRunner
	media     deletedMediaRepo
	chunks    purgeChunkRepo
	retention int
	now       func() time.Time
}

func (j *deletedMediaPurgeJob) Name() string { return "deleted-media-purge" }

func (j *deletedMediaPurgeJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	items, err := j.media.ListDeletedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list deleted media: %w", err)
	}

	var purged int
	var chunksDropped int64
	for i := range items {
		item := &items[i]
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			dropped, err := j.chunks.DeleteByItemTx(ctx, tx, item.ID)
			if err != nil {
				return err
			}
			chunksDropped += dropped
			return j.media.PurgeWithTx(tx, item.ID)
		})
		if err != nil {
			j.logg.Error(j.logg.WithItemID(ctx, item.ID.String()), "purge deleted media item", err)
			continue
		}
		purged++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"items_purged":   purged,
		"chunks_dropped": chunksDropped,
	})
	j.logg.Info(logCtx, "deleted media purge complete")
	return nil
}
