package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/postcast/internal/config"
	"github.com/ifuryst/postcast/internal/models"
	"github.com/ifuryst/postcast/internal/service/publisher"
)

const persistTimeout = 10 * time.Second

// Dispatcher publishes one post to each of its platforms.
type Dispatcher interface {
	PublishToPlatforms(ctx context.Context, content publisher.PublishContent, platforms []string) (publisher.Report, error)
}

// MediaLocator turns a stored media reference into the URL adapters fetch.
type MediaLocator interface {
	MediaURL(ref *string) *string
}

// ScanSummary counts what a single scan did.
type ScanSummary struct {
	Due       int
	Published int
	Failed    int
	// Errors counts due posts that were left scheduled.
	Errors int
}

// Scheduler periodically publishes due posts and moves them to a terminal status.
type Scheduler struct {
	config     *config.SchedulerConfig
	logger     *zap.Logger
	store      PublicationStore
	dispatcher Dispatcher
	media      MediaLocator
	now        func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(cfg *config.SchedulerConfig, logger *zap.Logger, store PublicationStore, dispatcher Dispatcher, media MediaLocator) *Scheduler {
	return &Scheduler{
		config:     cfg,
		logger:     logger,
		store:      store,
		dispatcher: dispatcher,
		media:      media,
		now:        time.Now,
	}
}

// Start launches the scan loop. The first scan runs immediately; later ones
// follow the configured interval until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.IsEnabled() {
		s.logger.Info("Scheduler is disabled")
		return nil
	}

	interval, err := s.config.IntervalDuration()
	if err != nil {
		s.logger.Error("Invalid scan interval", zap.String("interval", s.config.Interval), zap.Error(err))
		return err
	}
	scanTimeout, err := s.config.ScanTimeoutDuration()
	if err != nil {
		s.logger.Error("Invalid scan timeout", zap.String("scan_timeout", s.config.ScanTimeout), zap.Error(err))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("Starting scheduler",
		zap.Duration("interval", interval),
		zap.Duration("scan_timeout", scanTimeout))

	go s.loop(runCtx, interval, scanTimeout, s.done)
	return nil
}

// Stop cancels the loop and waits for the in-flight scan to return. It is
// safe to call more than once and before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("Scheduler shutdown completed")
}

func (s *Scheduler) loop(ctx context.Context, interval, scanTimeout time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Running initial scan")
	s.scan(ctx, scanTimeout)

	for {
		select {
		case <-ticker.C:
			s.scan(ctx, scanTimeout)
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		}
	}
}

func (s *Scheduler) scan(ctx context.Context, timeout time.Duration) {
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	summary, err := s.RunOnce(scanCtx)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("Scan aborted",
			zap.Error(err),
			zap.Int("due", summary.Due),
			zap.Duration("duration", duration))
		return
	}
	if summary.Due > 0 {
		s.logger.Info("Scan completed",
			zap.Int("due", summary.Due),
			zap.Int("published", summary.Published),
			zap.Int("failed", summary.Failed),
			zap.Int("errors", summary.Errors),
			zap.Duration("duration", duration))
	}
}

// RunOnce publishes every post that is due now. An error is returned when the
// due posts cannot be loaded or ctx ends mid-scan; failures of single posts
// are only counted in the summary.
func (s *Scheduler) RunOnce(ctx context.Context) (ScanSummary, error) {
	var summary ScanSummary

	posts, err := s.store.FindDue(ctx, s.now())
	if err != nil {
		return summary, fmt.Errorf("find due posts: %w", err)
	}
	summary.Due = len(posts)

	for i := range posts {
		if err := ctx.Err(); err != nil {
			summary.Errors += len(posts) - i
			return summary, err
		}

		status, err := s.publishPost(ctx, &posts[i])
		switch {
		case err != nil && ctx.Err() != nil:
			summary.Errors += len(posts) - i
			return summary, err
		case err != nil:
			summary.Errors++
			s.logger.Error("Failed to process due post",
				zap.Uint("post_id", posts[i].ID),
				zap.Error(err))
		case status == models.PostStatusPublished:
			summary.Published++
		default:
			summary.Failed++
		}
	}

	return summary, nil
}

// publishPost runs one post through its adapters and persists the terminal
// status. When ctx ends before every platform was tried the post stays
// scheduled and is picked up again by a later scan.
func (s *Scheduler) publishPost(ctx context.Context, post *models.Post) (models.PostStatus, error) {
	content := publisher.FromPost(post, s.media.MediaURL(post.MediaReference))
	report, publishErr := s.dispatcher.PublishToPlatforms(ctx, content, post.Platforms)
	finished := s.now().UTC()

	// The outcome is written even if ctx was cancelled in the meantime
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	s.recordAttempts(persistCtx, post.ID, report, finished)

	if publishErr != nil {
		return models.PostStatusScheduled, fmt.Errorf("publish post %d: %w", post.ID, publishErr)
	}

	status := models.PostStatusFailed
	var publishedAt *time.Time
	if report.Success {
		status = models.PostStatusPublished
		publishedAt = &finished
	}

	if err := s.store.UpdateStatus(persistCtx, post.ID, status, publishedAt); err != nil {
		return models.PostStatusScheduled, fmt.Errorf("persist status of post %d: %w", post.ID, err)
	}

	s.logger.Info("Post processed",
		zap.Uint("post_id", post.ID),
		zap.String("status", string(status)),
		zap.Int("platforms_attempted", len(report.Attempted())))
	return status, nil
}

func (s *Scheduler) recordAttempts(ctx context.Context, postID uint, report publisher.Report, at time.Time) {
	attempted := report.Attempted()
	if len(attempted) == 0 {
		return
	}

	attempts := make([]models.PublishAttempt, 0, len(attempted))
	for _, result := range attempted {
		attempts = append(attempts, models.PublishAttempt{
			PostID:      postID,
			Platform:    result.Platform,
			Success:     result.Success,
			AttemptedAt: at,
		})
	}

	if err := s.store.RecordAttempts(ctx, attempts); err != nil {
		s.logger.Warn("Failed to record publish attempts",
			zap.Uint("post_id", postID),
			zap.Error(err))
	}
}
