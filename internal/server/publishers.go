package server

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ifuryst/postcast/internal/config"
	"github.com/ifuryst/postcast/internal/service/publisher"
	"github.com/ifuryst/postcast/internal/service/publisher/instagram"
	"github.com/ifuryst/postcast/internal/service/publisher/whatsapp"
)

// NewPublishManager registers a publisher for every enabled platform.
func NewPublishManager(ctx context.Context, cfg *config.PublisherConfig, logger *zap.Logger) (*publisher.Manager, error) {
	manager := publisher.NewPublishManager(logger)

	platforms := []struct {
		publisher publisher.Publisher
		config    config.PlatformConfig
	}{
		{instagram.NewInstagramPublisher(logger), cfg.Instagram},
		{whatsapp.NewWhatsAppPublisher(logger), cfg.WhatsApp},
	}

	for _, p := range platforms {
		if !p.config.Enabled {
			logger.Info("Publisher disabled", zap.String("platform", p.publisher.GetPlatformName()))
			continue
		}
		err := manager.RegisterPublisher(ctx, p.publisher, publisher.PublishConfig{
			Enabled:         true,
			RatePerMinute:   p.config.RatePerMinute,
			MaxCaptionChars: p.config.MaxCaptionChars,
			SimulateFailure: p.config.SimulateFailure,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to register publisher: %w", err)
		}
	}

	return manager, nil
}
