package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/postcast/internal/models"
	"github.com/ifuryst/postcast/internal/service/media"
	"github.com/ifuryst/postcast/pkg/util"
)

// PostInput is the caller-supplied content of a create or update request.
type PostInput struct {
	Caption     string
	MediaType   string
	Platforms   []string
	ScheduledAt string
	// Media is nil when the field was not submitted, "" when it was submitted empty.
	Media  *string
	Upload media.Upload
}

type validatedInput struct {
	caption     string
	mediaType   string
	platforms   models.PlatformSet
	scheduledAt time.Time
}

// PostService implements the post lifecycle on top of a PostStore and the
// media resolver.
type PostService struct {
	store    PostStore
	storage  media.Storage
	resolver *media.Resolver
	location *time.Location
	logger   *zap.Logger
}

func NewPostService(store PostStore, storage media.Storage, resolver *media.Resolver, location *time.Location, logger *zap.Logger) *PostService {
	if location == nil {
		location = time.Local
	}
	return &PostService{
		store:    store,
		storage:  storage,
		resolver: resolver,
		location: location,
		logger:   logger,
	}
}

// Create stores a new scheduled post and returns its id.
func (s *PostService) Create(ctx context.Context, in PostInput) (uint, error) {
	res, err := s.resolver.ResolveNew(in.Upload, in.Media)
	if err != nil {
		return 0, err
	}

	fields, err := s.validate(in)
	if err != nil {
		s.discard(res.Saved)
		return 0, err
	}

	post := &models.Post{
		Caption:        fields.caption,
		MediaReference: res.Reference,
		MediaType:      fields.mediaType,
		Platforms:      fields.platforms,
		ScheduledAt:    fields.scheduledAt,
		Status:         models.PostStatusScheduled,
	}

	id, err := s.store.Insert(ctx, post)
	if err != nil {
		s.discard(res.Saved)
		return 0, err
	}

	s.logger.Info("Post created",
		zap.Uint("post_id", id),
		zap.Strings("platforms", fields.platforms),
		zap.Time("scheduled_at", fields.scheduledAt))
	return id, nil
}

// List returns every post, latest scheduled first, with MediaURL filled in.
func (s *PostService) List(ctx context.Context) ([]models.Post, error) {
	posts, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		posts[i].MediaURL = s.resolver.MediaURL(posts[i].MediaReference)
	}
	return posts, nil
}

func (s *PostService) Get(ctx context.Context, id uint) (*models.Post, error) {
	post, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	post.MediaURL = s.resolver.MediaURL(post.MediaReference)
	return post, nil
}

// Update replaces the editable fields of a post. Status and published time
// are left as they are.
func (s *PostService) Update(ctx context.Context, id uint, in PostInput) (*models.Post, error) {
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := s.resolver.Resolve(in.Upload, in.Media, current.MediaReference)
	if err != nil {
		return nil, err
	}

	fields, err := s.validate(in)
	if err != nil {
		s.discard(res.Saved)
		return nil, err
	}

	err = s.store.Update(ctx, id, PostUpdate{
		Caption:        fields.caption,
		MediaReference: res.Reference,
		MediaType:      fields.mediaType,
		Platforms:      fields.platforms,
		ScheduledAt:    fields.scheduledAt,
	})
	if err != nil {
		s.discard(res.Saved)
		return nil, err
	}

	if res.DeletePrevious() {
		s.discard(res.Stale)
	}

	s.logger.Info("Post updated",
		zap.Uint("post_id", id),
		zap.Bool("media_replaced", res.DeletePrevious()))
	return s.Get(ctx, id)
}

// Delete removes a post and the local media file it owns. A failure to remove
// the file is logged and does not stop the record from being deleted.
func (s *PostService) Delete(ctx context.Context, id uint) error {
	post, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if ref := post.MediaReference; ref != nil && media.IsLocalReference(*ref) && s.storage.Exists(*ref) {
		s.discard(*ref)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Post deleted", zap.Uint("post_id", id))
	return nil
}

// ListAttempts returns the publish history of a post.
func (s *PostService) ListAttempts(ctx context.Context, id uint) ([]models.PublishAttempt, error) {
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListAttempts(ctx, id)
}

func (s *PostService) validate(in PostInput) (validatedInput, error) {
	var missing []string

	caption := strings.TrimSpace(in.Caption)
	if caption == "" {
		missing = append(missing, "caption")
	}
	mediaType := strings.ToLower(strings.TrimSpace(in.MediaType))
	if mediaType == "" {
		missing = append(missing, "media_type")
	}
	platforms := models.NewPlatformSet(in.Platforms...)
	if len(platforms) == 0 {
		missing = append(missing, "platforms")
	}
	if strings.TrimSpace(in.ScheduledAt) == "" {
		missing = append(missing, "scheduled_at")
	}
	if len(missing) > 0 {
		return validatedInput{}, models.ValidationErrorf("missing required fields: %s", strings.Join(missing, ", "))
	}

	scheduledAt, err := util.ParseISOTime(in.ScheduledAt, s.location)
	if err != nil {
		return validatedInput{}, fmt.Errorf("%w: scheduled_at: %v", models.ErrValidation, err)
	}

	return validatedInput{
		caption:     in.Caption,
		mediaType:   mediaType,
		platforms:   platforms,
		scheduledAt: scheduledAt,
	}, nil
}

// discard removes a stored file, logging instead of failing.
func (s *PostService) discard(ref string) {
	if ref == "" {
		return
	}
	if err := s.storage.Delete(ref); err != nil {
		s.logger.Warn("Failed to remove media file",
			zap.String("reference", ref),
			zap.Error(err))
	}
}
