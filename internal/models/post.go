package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// PostStatus is the publication state of a post.
type PostStatus string

const (
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusPublished PostStatus = "published"
	PostStatusFailed    PostStatus = "failed"
)

// IsTerminal reports whether the scheduler is done with a post in this state.
func (s PostStatus) IsTerminal() bool {
	return s == PostStatusPublished || s == PostStatusFailed
}

const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
)

// PlatformSet is a list of distinct platform tokens stored as a comma separated column
type PlatformSet []string

// NewPlatformSet lowercases, trims and de-duplicates the given tokens, keeping first-seen order.
func NewPlatformSet(tokens ...string) PlatformSet {
	seen := make(map[string]struct{}, len(tokens))
	set := make(PlatformSet, 0, len(tokens))
	for _, token := range tokens {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		set = append(set, token)
	}
	return set
}

// Scan implements the sql.Scanner interface
func (s *PlatformSet) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*s = PlatformSet{}
		return nil
	case string:
		*s = NewPlatformSet(strings.Split(v, ",")...)
		return nil
	case []byte:
		*s = NewPlatformSet(strings.Split(string(v), ",")...)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into PlatformSet", value)
	}
}

// Value implements the driver.Valuer interface
func (s PlatformSet) Value() (driver.Value, error) {
	return strings.Join(NewPlatformSet(s...), ","), nil
}

// GormDataType keeps the column a plain string on every dialect.
func (PlatformSet) GormDataType() string {
	return "string"
}

// Post is a social media post waiting for, or done with, publication.
type Post struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	Caption        string      `gorm:"type:text;not null" json:"caption"`
	MediaReference *string     `gorm:"size:1024" json:"media_reference"`
	MediaType      string      `gorm:"size:50;not null" json:"media_type"`
	Platforms      PlatformSet `gorm:"size:500;not null" json:"platforms"`
	ScheduledAt    time.Time   `gorm:"not null;index:idx_posts_due,priority:2" json:"scheduled_at"`
	Status         PostStatus  `gorm:"size:20;not null;default:'scheduled';index:idx_posts_due,priority:1" json:"status"`
	PublishedAt    *time.Time  `json:"published_at"`
	CreatedAt      time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time   `gorm:"autoUpdateTime" json:"updated_at"`

	// MediaURL is computed on read and never persisted.
	MediaURL *string `gorm:"-" json:"media_url"`
}

// IsDue reports whether the post should be picked up by a scan at now.
func (p *Post) IsDue(now time.Time) bool {
	return p.Status == PostStatusScheduled && !p.ScheduledAt.After(now)
}

// PublishAttempt records one adapter invocation made while publishing a post.
type PublishAttempt struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PostID      uint      `gorm:"not null;index" json:"post_id"`
	Platform    string    `gorm:"size:100;not null" json:"platform"`
	Success     bool      `gorm:"not null" json:"success"`
	AttemptedAt time.Time `gorm:"not null" json:"attempted_at"`
}
