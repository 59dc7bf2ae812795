package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/ifuryst/postcast/internal/models"
)

// GormPostStore implements PostStore and PublicationStore on top of gorm.
// Every call is a single statement or its own transaction.
type GormPostStore struct {
	db *gorm.DB
}

func NewGormPostStore(db *gorm.DB) *GormPostStore {
	return &GormPostStore{db: db}
}

func (s *GormPostStore) Insert(ctx context.Context, post *models.Post) (uint, error) {
	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		return 0, classifyError("insert post", err)
	}
	return post.ID, nil
}

func (s *GormPostStore) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).First(&post, id).Error; err != nil {
		return nil, classifyError("get post", err)
	}
	return &post, nil
}

func (s *GormPostStore) ListAll(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	if err := s.db.WithContext(ctx).Order("scheduled_at DESC").Order("id DESC").Find(&posts).Error; err != nil {
		return nil, classifyError("list posts", err)
	}
	return posts, nil
}

func (s *GormPostStore) Update(ctx context.Context, id uint, fields PostUpdate) error {
	// A map so that a nil media reference is written as NULL
	result := s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).Updates(map[string]interface{}{
		"caption":         fields.Caption,
		"media_reference": fields.MediaReference,
		"media_type":      fields.MediaType,
		"platforms":       fields.Platforms,
		"scheduled_at":    fields.ScheduledAt,
	})
	if result.Error != nil {
		return classifyError("update post", result.Error)
	}
	if result.RowsAffected == 0 {
		// MySQL reports zero rows for an update that changes nothing
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return classifyError("update post", err)
		}
		if count == 0 {
			return fmt.Errorf("update post: %w", models.ErrNotFound)
		}
	}
	return nil
}

func (s *GormPostStore) Delete(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.PublishAttempt{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Post{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return classifyError("delete post", err)
	}
	return nil
}

func (s *GormPostStore) FindDue(ctx context.Context, now time.Time) ([]models.Post, error) {
	var posts []models.Post
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", string(models.PostStatusScheduled), now.UTC()).
		Order("scheduled_at ASC").
		Order("id ASC").
		Find(&posts).Error
	if err != nil {
		return nil, classifyError("find due posts", err)
	}
	return posts, nil
}

func (s *GormPostStore) UpdateStatus(ctx context.Context, id uint, status models.PostStatus, publishedAt *time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("update post status: invalid target status %q", status)
	}

	// Only scheduled posts may transition; terminal states are final.
	result := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ? AND status = ?", id, string(models.PostStatusScheduled)).
		Updates(map[string]interface{}{
			"status":       string(status),
			"published_at": publishedAt,
		})
	if result.Error != nil {
		return classifyError("update post status", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("update post status: %w", models.ErrNotFound)
	}
	return nil
}

func (s *GormPostStore) RecordAttempts(ctx context.Context, attempts []models.PublishAttempt) error {
	if len(attempts) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&attempts).Error; err != nil {
		return classifyError("record publish attempts", err)
	}
	return nil
}

func (s *GormPostStore) ListAttempts(ctx context.Context, postID uint) ([]models.PublishAttempt, error) {
	var attempts []models.PublishAttempt
	err := s.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("attempted_at DESC").
		Order("id DESC").
		Find(&attempts).Error
	if err != nil {
		return nil, classifyError("list publish attempts", err)
	}
	return attempts, nil
}

type statusCount struct {
	Status string
	Count  int64
}

type platformAttempts struct {
	Platform   string
	Total      int64
	Successful int64
}

// Summary counts posts by status and aggregates publish attempts per platform.
func (s *GormPostStore) Summary(ctx context.Context, now time.Time) (*models.DashboardSummary, error) {
	db := s.db.WithContext(ctx)
	summary := &models.DashboardSummary{}

	var counts []statusCount
	if err := db.Model(&models.Post{}).Select("status, count(*) as count").Group("status").Scan(&counts).Error; err != nil {
		return nil, classifyError("count posts", err)
	}
	for _, c := range counts {
		summary.TotalPosts += c.Count
		switch models.PostStatus(c.Status) {
		case models.PostStatusScheduled:
			summary.ScheduledPosts = c.Count
		case models.PostStatusPublished:
			summary.PublishedPosts = c.Count
		case models.PostStatusFailed:
			summary.FailedPosts = c.Count
		}
	}

	err := db.Model(&models.Post{}).
		Where("status = ? AND scheduled_at <= ?", string(models.PostStatusScheduled), now.UTC()).
		Count(&summary.DuePosts).Error
	if err != nil {
		return nil, classifyError("count due posts", err)
	}

	var last models.Post
	err = db.Where("status = ?", string(models.PostStatusPublished)).
		Order("published_at DESC").
		Limit(1).
		Find(&last).Error
	if err != nil {
		return nil, classifyError("find last published post", err)
	}
	if last.ID != 0 {
		summary.LastPublishTime = last.PublishedAt
	}

	var platforms []platformAttempts
	err = db.Model(&models.PublishAttempt{}).
		Select("platform, count(*) as total, sum(case when success then 1 else 0 end) as successful").
		Group("platform").
		Order("platform").
		Scan(&platforms).Error
	if err != nil {
		return nil, classifyError("aggregate publish attempts", err)
	}
	for _, p := range platforms {
		// max(attempted_at) does not scan into time.Time on every driver
		var latest models.PublishAttempt
		err := db.Where("platform = ?", p.Platform).
			Order("attempted_at DESC").
			Limit(1).
			Find(&latest).Error
		if err != nil {
			return nil, classifyError("find last publish attempt", err)
		}

		stats := models.PlatformStats{
			Platform:      p.Platform,
			TotalAttempts: p.Total,
			Successful:    p.Successful,
		}
		if latest.ID != 0 {
			attemptedAt := latest.AttemptedAt
			stats.LastAttemptAt = &attemptedAt
		}
		summary.Platforms = append(summary.Platforms, stats)
	}

	return summary, nil
}

// classifyError maps driver errors onto the store error kinds.
func classifyError(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w: %w", op, models.ErrStore, err)
}

func isUnavailable(err error) bool {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	// Class 08 is connection exception; 57P01-57P03 mean the server is going away.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "57P01" || pgErr.Code == "57P02" || pgErr.Code == "57P03" {
			return true
		}
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
