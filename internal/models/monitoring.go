package models

import (
	"time"
)

// PlatformStats aggregates the publish attempts made for one platform
type PlatformStats struct {
	Platform      string     `json:"platform"`
	Registered    bool       `json:"registered"`
	TotalAttempts int64      `json:"total_attempts"`
	Successful    int64      `json:"successful"`
	Failed        int64      `json:"failed"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
}

// DashboardSummary is a point-in-time view over posts and publish attempts
type DashboardSummary struct {
	TotalPosts      int64           `json:"total_posts"`
	ScheduledPosts  int64           `json:"scheduled_posts"`
	DuePosts        int64           `json:"due_posts"` // scheduled and already due
	PublishedPosts  int64           `json:"published_posts"`
	FailedPosts     int64           `json:"failed_posts"`
	LastPublishTime *time.Time      `json:"last_publish_time"`
	Platforms       []PlatformStats `json:"platforms"`
	GeneratedAt     time.Time       `json:"generated_at"`
}
