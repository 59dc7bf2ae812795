package publisher

import (
	"context"
	"strings"

	"github.com/ifuryst/postcast/internal/models"
)

// PublishContent is what an adapter receives for a single post.
type PublishContent struct {
	PostID    uint   `json:"post_id"`
	Caption   string `json:"caption"`
	MediaType string `json:"media_type"`
	// MediaReference is the stored reference, MediaURL the URL a platform can fetch.
	MediaReference string `json:"media_reference"`
	MediaURL       string `json:"media_url"`
}

// PublishConfig represents platform-specific configuration
type PublishConfig struct {
	PlatformName    string  `json:"platform_name"`
	Enabled         bool    `json:"enabled"`
	RatePerMinute   float64 `json:"rate_per_minute"`
	MaxCaptionChars int     `json:"max_caption_chars"`
	SimulateFailure bool    `json:"simulate_failure"`
}

// Publisher is the capability every platform adapter implements.
//
// Publish reports expected failures by returning false. Panics and other
// abnormal exits are adapter defects and are contained by the Manager.
type Publisher interface {
	GetPlatformName() string

	Initialize(ctx context.Context, config PublishConfig) error
	Publish(ctx context.Context, content PublishContent) bool
}

// FromPost converts a stored post to PublishContent. mediaURL is the servable
// form of the post's media reference.
func FromPost(post *models.Post, mediaURL *string) PublishContent {
	content := PublishContent{
		PostID:    post.ID,
		Caption:   strings.TrimSpace(post.Caption),
		MediaType: post.MediaType,
	}
	if post.MediaReference != nil {
		content.MediaReference = *post.MediaReference
	}
	if mediaURL != nil {
		content.MediaURL = *mediaURL
	}
	return content
}
