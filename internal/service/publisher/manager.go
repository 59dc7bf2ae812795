package publisher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Result is the outcome for one platform named by a post.
type Result struct {
	Platform  string `json:"platform"`
	Attempted bool   `json:"attempted"`
	Success   bool   `json:"success"`
}

// Report aggregates the per-platform results of publishing one post.
type Report struct {
	// Success is the logical AND over every attempted platform. Platforms
	// without a registered publisher are skipped and do not count.
	Success bool
	Results []Result
}

// Attempted returns only the results of publishers that were invoked.
func (r Report) Attempted() []Result {
	var attempted []Result
	for _, result := range r.Results {
		if result.Attempted {
			attempted = append(attempted, result)
		}
	}
	return attempted
}

// Manager dispatches publish requests to the publisher registered for each platform.
type Manager struct {
	mu         sync.RWMutex
	publishers map[string]Publisher
	configs    map[string]PublishConfig
	limiters   map[string]*rate.Limiter
	logger     *zap.Logger
}

func NewPublishManager(logger *zap.Logger) *Manager {
	return &Manager{
		publishers: make(map[string]Publisher),
		configs:    make(map[string]PublishConfig),
		limiters:   make(map[string]*rate.Limiter),
		logger:     logger,
	}
}

// RegisterPublisher initialises the publisher with config and makes it
// available under its platform name.
func (m *Manager) RegisterPublisher(ctx context.Context, publisher Publisher, config PublishConfig) error {
	platformName := strings.ToLower(publisher.GetPlatformName())

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.publishers[platformName]; exists {
		return fmt.Errorf("publisher for platform %s already registered", platformName)
	}

	config.PlatformName = platformName
	if err := publisher.Initialize(ctx, config); err != nil {
		return fmt.Errorf("failed to initialize publisher %s: %w", platformName, err)
	}

	m.publishers[platformName] = publisher
	m.configs[platformName] = config
	if config.RatePerMinute > 0 {
		m.limiters[platformName] = rate.NewLimiter(rate.Limit(config.RatePerMinute/60), 1)
	}

	m.logger.Info("Publisher registered",
		zap.String("platform", platformName),
		zap.Float64("rate_per_minute", config.RatePerMinute))
	return nil
}

func (m *Manager) GetPublisher(platformName string) (Publisher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	publisher, exists := m.publishers[strings.ToLower(platformName)]
	if !exists {
		return nil, fmt.Errorf("publisher for platform %s not found", platformName)
	}
	return publisher, nil
}

// GetAvailablePlatforms returns the registered platform names, sorted.
func (m *Manager) GetAvailablePlatforms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	platforms := make([]string, 0, len(m.publishers))
	for name := range m.publishers {
		platforms = append(platforms, name)
	}
	sort.Strings(platforms)
	return platforms
}

type dispatch struct {
	platform  string
	publisher Publisher
	limiter   *rate.Limiter
}

// PublishToPlatforms invokes the publisher of every named platform in order.
// The only error returned is ctx's, when the run is abandoned before every
// platform was tried; the report is then incomplete and must not be used to
// transition the post.
//
// Rate limits of all platforms are acquired before the first adapter runs, so
// a limit that cannot be met within ctx abandons the post without publishing
// to any platform.
func (m *Manager) PublishToPlatforms(ctx context.Context, content PublishContent, platforms []string) (Report, error) {
	report := Report{Success: true}

	targets := make([]dispatch, 0, len(platforms))
	m.mu.RLock()
	for _, platformName := range platforms {
		platformName = strings.ToLower(platformName)
		publisher, exists := m.publishers[platformName]
		if !exists {
			targets = append(targets, dispatch{platform: platformName})
			continue
		}
		targets = append(targets, dispatch{
			platform:  platformName,
			publisher: publisher,
			limiter:   m.limiters[platformName],
		})
	}
	m.mu.RUnlock()

	for _, target := range targets {
		if target.limiter == nil {
			continue
		}
		if err := target.limiter.Wait(ctx); err != nil {
			return report, fmt.Errorf("waiting for %s rate limit: %w", target.platform, err)
		}
	}

	for _, target := range targets {
		if target.publisher == nil {
			m.logger.Warn("No publisher for platform, skipping",
				zap.String("platform", target.platform),
				zap.Uint("post_id", content.PostID))
			report.Results = append(report.Results, Result{Platform: target.platform})
			continue
		}

		if err := ctx.Err(); err != nil {
			return report, err
		}

		success := m.invoke(ctx, target.publisher, target.platform, content)
		report.Results = append(report.Results, Result{
			Platform:  target.platform,
			Attempted: true,
			Success:   success,
		})
		if !success {
			report.Success = false
		}

		m.logger.Info("Publishing completed",
			zap.String("platform", target.platform),
			zap.Uint("post_id", content.PostID),
			zap.Bool("success", success))
	}

	return report, nil
}

// invoke calls the publisher, turning a panic into a failed publish.
func (m *Manager) invoke(ctx context.Context, publisher Publisher, platformName string, content PublishContent) (success bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Publisher panicked",
				zap.String("platform", platformName),
				zap.Uint("post_id", content.PostID),
				zap.Any("panic", r),
				zap.Stack("stack"))
			success = false
		}
	}()

	return publisher.Publish(ctx, content)
}
