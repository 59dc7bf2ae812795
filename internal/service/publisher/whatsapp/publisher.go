package whatsapp

import (
	"context"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/ifuryst/postcast/internal/service/publisher"
)

const platformName = "whatsapp"

// WhatsAppPublisher simulates sending a post to a WhatsApp channel.
type WhatsAppPublisher struct {
	logger          *zap.Logger
	policy          *bluemonday.Policy
	maxCaptionChars int
	simulateFailure bool
}

func NewWhatsAppPublisher(logger *zap.Logger) publisher.Publisher {
	return &WhatsAppPublisher{
		logger: logger,
		policy: bluemonday.StrictPolicy(),
	}
}

func (p *WhatsAppPublisher) GetPlatformName() string {
	return platformName
}

func (p *WhatsAppPublisher) Initialize(ctx context.Context, config publisher.PublishConfig) error {
	if config.MaxCaptionChars < 0 {
		return fmt.Errorf("invalid max caption length: %d", config.MaxCaptionChars)
	}

	p.maxCaptionChars = config.MaxCaptionChars
	p.simulateFailure = config.SimulateFailure

	p.logger.Info("WhatsApp publisher initialized",
		zap.Int("max_caption_chars", p.maxCaptionChars),
		zap.Bool("simulate_failure", p.simulateFailure))
	return nil
}

func (p *WhatsAppPublisher) Publish(ctx context.Context, content publisher.PublishContent) bool {
	caption := strings.TrimSpace(html.UnescapeString(p.policy.Sanitize(content.Caption)))

	if caption == "" && content.MediaURL == "" {
		p.logger.Warn("WhatsApp message rejected: nothing to send",
			zap.Uint("post_id", content.PostID))
		return false
	}
	// The caption limit only applies to media messages
	if content.MediaURL != "" && p.maxCaptionChars > 0 && utf8.RuneCountInString(caption) > p.maxCaptionChars {
		p.logger.Warn("WhatsApp message rejected: caption too long",
			zap.Uint("post_id", content.PostID),
			zap.Int("limit", p.maxCaptionChars))
		return false
	}
	if p.simulateFailure {
		p.logger.Warn("WhatsApp publish failed (simulated)", zap.Uint("post_id", content.PostID))
		return false
	}

	p.logger.Info("Publishing to WhatsApp",
		zap.Uint("post_id", content.PostID),
		zap.String("caption", caption),
		zap.String("media", content.MediaURL))
	return true
}
