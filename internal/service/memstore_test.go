package service

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ifuryst/postcast/internal/models"
)

// memStore is an in-memory PostStore and PublicationStore.
type memStore struct {
	mu       sync.Mutex
	nextID   uint
	posts    map[uint]*models.Post
	attempts []models.PublishAttempt

	insertErr       error
	updateErr       error
	findDueErr      error
	updateStatusErr map[uint]error
	writes          int
}

func newMemStore() *memStore {
	return &memStore{
		posts:           make(map[uint]*models.Post),
		updateStatusErr: make(map[uint]error),
	}
}

func clonePost(p *models.Post) models.Post {
	c := *p
	c.Platforms = append(models.PlatformSet(nil), p.Platforms...)
	return c
}

func (s *memStore) Insert(ctx context.Context, post *models.Post) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	s.nextID++
	s.writes++
	post.ID = s.nextID
	stored := clonePost(post)
	s.posts[post.ID] = &stored
	return post.ID, nil
}

func (s *memStore) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := clonePost(post)
	return &c, nil
}

func (s *memStore) ListAll(ctx context.Context) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	posts := make([]models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		posts = append(posts, clonePost(p))
	}
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].ScheduledAt.Equal(posts[j].ScheduledAt) {
			return posts[i].ScheduledAt.After(posts[j].ScheduledAt)
		}
		return posts[i].ID > posts[j].ID
	})
	return posts, nil
}

func (s *memStore) Update(ctx context.Context, id uint, fields PostUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	post, ok := s.posts[id]
	if !ok {
		return models.ErrNotFound
	}
	s.writes++
	post.Caption = fields.Caption
	post.MediaReference = fields.MediaReference
	post.MediaType = fields.MediaType
	post.Platforms = fields.Platforms
	post.ScheduledAt = fields.ScheduledAt
	return nil
}

func (s *memStore) Delete(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return models.ErrNotFound
	}
	s.writes++
	delete(s.posts, id)
	kept := s.attempts[:0]
	for _, a := range s.attempts {
		if a.PostID != id {
			kept = append(kept, a)
		}
	}
	s.attempts = kept
	return nil
}

func (s *memStore) ListAttempts(ctx context.Context, postID uint) ([]models.PublishAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var attempts []models.PublishAttempt
	for _, a := range s.attempts {
		if a.PostID == postID {
			attempts = append(attempts, a)
		}
	}
	return attempts, nil
}

func (s *memStore) FindDue(ctx context.Context, now time.Time) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findDueErr != nil {
		return nil, s.findDueErr
	}
	var due []models.Post
	for _, p := range s.posts {
		if p.IsDue(now) {
			due = append(due, clonePost(p))
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].ScheduledAt.Equal(due[j].ScheduledAt) {
			return due[i].ScheduledAt.Before(due[j].ScheduledAt)
		}
		return due[i].ID < due[j].ID
	})
	return due, nil
}

func (s *memStore) UpdateStatus(ctx context.Context, id uint, status models.PostStatus, publishedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.updateStatusErr[id]; err != nil {
		return err
	}
	if !status.IsTerminal() {
		return fmt.Errorf("invalid target status %q", status)
	}
	post, ok := s.posts[id]
	if !ok || post.Status != models.PostStatusScheduled {
		return models.ErrNotFound
	}
	s.writes++
	post.Status = status
	post.PublishedAt = publishedAt
	return nil
}

func (s *memStore) RecordAttempts(ctx context.Context, attempts []models.PublishAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range attempts {
		a.ID = uint(len(s.attempts) + 1)
		s.attempts = append(s.attempts, a)
	}
	return nil
}

func (s *memStore) post(t *testing.T, id uint) models.Post {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		t.Fatalf("post %d not in store", id)
	}
	return clonePost(post)
}

func (s *memStore) put(post models.Post) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	post.ID = s.nextID
	s.posts[post.ID] = &post
	return post.ID
}

type testUpload struct {
	name    string
	content string
}

func (u testUpload) Filename() string { return u.name }

func (u testUpload) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(u.content)), nil
}

func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return n
}
