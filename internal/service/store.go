package service

import (
	"context"
	"time"

	"github.com/ifuryst/postcast/internal/models"
)

// PostUpdate carries the caller-editable fields of a post. Status and
// PublishedAt are deliberately absent: only the scheduler changes them.
type PostUpdate struct {
	Caption        string
	MediaReference *string
	MediaType      string
	Platforms      models.PlatformSet
	ScheduledAt    time.Time
}

// PostStore is the persistence used by the post lifecycle operations.
// Lookups of missing posts fail with models.ErrNotFound; other failures wrap
// models.ErrStoreUnavailable or models.ErrStore.
type PostStore interface {
	Insert(ctx context.Context, post *models.Post) (uint, error)
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	// ListAll returns every post ordered by scheduled time, latest first.
	ListAll(ctx context.Context) ([]models.Post, error)
	Update(ctx context.Context, id uint, fields PostUpdate) error
	Delete(ctx context.Context, id uint) error
	ListAttempts(ctx context.Context, postID uint) ([]models.PublishAttempt, error)
}

// PublicationStore is the persistence used by the scheduler.
type PublicationStore interface {
	// FindDue returns scheduled posts with a scheduled time at or before now.
	FindDue(ctx context.Context, now time.Time) ([]models.Post, error)
	// UpdateStatus moves a scheduled post to a terminal status.
	UpdateStatus(ctx context.Context, id uint, status models.PostStatus, publishedAt *time.Time) error
	RecordAttempts(ctx context.Context, attempts []models.PublishAttempt) error
}
