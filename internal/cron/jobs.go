package cron

import (
	"context"

	"gorm.io/gorm"
)

// txRunner is the slice of the db client jobs need for transactional work.
type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
