package instagram

import (
	"context"
	"fmt"
	"html"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/ifuryst/postcast/internal/service/publisher"
)

const platformName = "instagram"

// InstagramPublisher simulates publishing to Instagram. No API call is made;
// it only enforces the constraints Instagram would reject a post for.
type InstagramPublisher struct {
	logger          *zap.Logger
	policy          *bluemonday.Policy
	maxCaptionChars int
	simulateFailure bool
}

func NewInstagramPublisher(logger *zap.Logger) publisher.Publisher {
	return &InstagramPublisher{
		logger: logger,
		policy: bluemonday.StrictPolicy(),
	}
}

func (p *InstagramPublisher) GetPlatformName() string {
	return platformName
}

func (p *InstagramPublisher) Initialize(ctx context.Context, config publisher.PublishConfig) error {
	if config.MaxCaptionChars < 0 {
		return fmt.Errorf("invalid max caption length: %d", config.MaxCaptionChars)
	}

	p.maxCaptionChars = config.MaxCaptionChars
	p.simulateFailure = config.SimulateFailure

	p.logger.Info("Instagram publisher initialized",
		zap.Int("max_caption_chars", p.maxCaptionChars),
		zap.Bool("simulate_failure", p.simulateFailure))
	return nil
}

func (p *InstagramPublisher) Publish(ctx context.Context, content publisher.PublishContent) bool {
	caption := html.UnescapeString(p.policy.Sanitize(content.Caption))

	// Instagram has no text-only posts
	if content.MediaURL == "" && content.MediaReference == "" {
		p.logger.Warn("Instagram post rejected: media is required",
			zap.Uint("post_id", content.PostID))
		return false
	}
	if p.maxCaptionChars > 0 && utf8.RuneCountInString(caption) > p.maxCaptionChars {
		p.logger.Warn("Instagram post rejected: caption too long",
			zap.Uint("post_id", content.PostID),
			zap.Int("limit", p.maxCaptionChars))
		return false
	}
	if p.simulateFailure {
		p.logger.Warn("Instagram publish failed (simulated)", zap.Uint("post_id", content.PostID))
		return false
	}

	p.logger.Info("Publishing to Instagram",
		zap.Uint("post_id", content.PostID),
		zap.String("caption", caption),
		zap.String("media_type", content.MediaType),
		zap.String("media", mediaOf(content)))
	return true
}

func mediaOf(content publisher.PublishContent) string {
	if content.MediaURL != "" {
		return content.MediaURL
	}
	return content.MediaReference
}
