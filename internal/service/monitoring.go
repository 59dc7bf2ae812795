package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/postcast/internal/models"
)

// StatsStore computes aggregate counts over posts and publish attempts.
type StatsStore interface {
	Summary(ctx context.Context, now time.Time) (*models.DashboardSummary, error)
}

// PlatformLister reports the platforms that currently have a publisher.
type PlatformLister interface {
	GetAvailablePlatforms() []string
}

type MonitoringService struct {
	store     StatsStore
	platforms PlatformLister
	logger    *zap.Logger
	now       func() time.Time
}

func NewMonitoringService(store StatsStore, platforms PlatformLister, logger *zap.Logger) *MonitoringService {
	return &MonitoringService{
		store:     store,
		platforms: platforms,
		logger:    logger,
		now:       time.Now,
	}
}

// GetDashboardSummary returns post counts by status and per-platform attempt
// statistics. Registered platforms without any attempt are listed with zero counts.
func (m *MonitoringService) GetDashboardSummary(ctx context.Context) (*models.DashboardSummary, error) {
	now := m.now().UTC()

	summary, err := m.store.Summary(ctx, now)
	if err != nil {
		m.logger.Error("Failed to compute dashboard summary", zap.Error(err))
		return nil, err
	}

	registered := make(map[string]bool)
	for _, name := range m.platforms.GetAvailablePlatforms() {
		registered[name] = true
	}

	for i := range summary.Platforms {
		name := summary.Platforms[i].Platform
		summary.Platforms[i].Failed = summary.Platforms[i].TotalAttempts - summary.Platforms[i].Successful
		if registered[name] {
			summary.Platforms[i].Registered = true
			delete(registered, name)
		}
	}
	for name := range registered {
		summary.Platforms = append(summary.Platforms, models.PlatformStats{Platform: name, Registered: true})
	}
	sort.Slice(summary.Platforms, func(i, j int) bool {
		return summary.Platforms[i].Platform < summary.Platforms[j].Platform
	})

	summary.GeneratedAt = now
	return summary, nil
}
