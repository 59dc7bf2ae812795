package service

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ifuryst/postcast/internal/models"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{
			name:     "Record not found",
			err:      gorm.ErrRecordNotFound,
			expected: models.ErrNotFound,
		},
		{
			name:     "Wrapped record not found",
			err:      fmt.Errorf("tx: %w", gorm.ErrRecordNotFound),
			expected: models.ErrNotFound,
		},
		{
			name:     "Bad connection",
			err:      driver.ErrBadConn,
			expected: models.ErrStoreUnavailable,
		},
		{
			name:     "MySQL invalid connection",
			err:      mysql.ErrInvalidConn,
			expected: models.ErrStoreUnavailable,
		},
		{
			name:     "Dial failure",
			err:      &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
			expected: models.ErrStoreUnavailable,
		},
		{
			name:     "Postgres connection failure",
			err:      &pgconn.PgError{Code: "08006", Message: "connection failure"},
			expected: models.ErrStoreUnavailable,
		},
		{
			name:     "Postgres shutting down",
			err:      &pgconn.PgError{Code: "57P01", Message: "terminating connection due to administrator command"},
			expected: models.ErrStoreUnavailable,
		},
		{
			name:     "Postgres unique violation",
			err:      &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"},
			expected: models.ErrStore,
		},
		{
			name:     "Constraint violation",
			err:      errors.New("duplicate key value violates unique constraint"),
			expected: models.ErrStore,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := classifyError("op", tt.err)
			if !errors.Is(result, tt.expected) {
				t.Errorf("classifyError(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestClassifyErrorKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	if err := classifyError("insert post", cause); !errors.Is(err, cause) {
		t.Errorf("expected cause to stay in the chain, got %v", err)
	}
}

func TestClassifyError_PostgresConnectError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Nothing listens on port 1.
	_, err := pgconn.Connect(ctx, "postgres://postcast@127.0.0.1:1/postcast?sslmode=disable&connect_timeout=2")
	if err == nil {
		t.Fatal("expected connection to fail")
	}
	var connectErr *pgconn.ConnectError
	if !errors.As(err, &connectErr) {
		t.Fatalf("expected *pgconn.ConnectError, got %T: %v", err, err)
	}

	if result := classifyError("find due posts", err); !errors.Is(result, models.ErrStoreUnavailable) {
		t.Errorf("classifyError(%v) = %v, want store unavailable", err, result)
	}
}

// newTestGormStore opens an in-memory SQLite database with the production schema.
func newTestGormStore(t *testing.T) (*GormPostStore, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return NewGormPostStore(db), db
}

func insertTestPost(t *testing.T, store *GormPostStore, status models.PostStatus, scheduledAt time.Time) uint {
	t.Helper()
	post := &models.Post{
		Caption:        "Launch",
		MediaReference: strPtr("2025/03/10/a.jpg"),
		MediaType:      models.MediaTypeImage,
		Platforms:      models.NewPlatformSet("instagram", "whatsapp"),
		ScheduledAt:    scheduledAt,
		Status:         status,
	}
	if status == models.PostStatusPublished {
		publishedAt := scheduledAt
		post.PublishedAt = &publishedAt
	}
	id, err := store.Insert(context.Background(), post)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	return id
}

func TestGormPostStore_InsertAndGet(t *testing.T) {
	store, _ := newTestGormStore(t)
	ctx := context.Background()

	id := insertTestPost(t, store, models.PostStatusScheduled, testNow)

	post, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if post.Caption != "Launch" || post.Status != models.PostStatusScheduled || !post.ScheduledAt.Equal(testNow) {
		t.Errorf("unexpected post %+v", post)
	}
	if post.MediaReference == nil || *post.MediaReference != "2025/03/10/a.jpg" {
		t.Errorf("MediaReference = %v", post.MediaReference)
	}
	if len(post.Platforms) != 2 || post.Platforms[0] != "instagram" || post.Platforms[1] != "whatsapp" {
		t.Errorf("Platforms = %q", post.Platforms)
	}

	if _, err := store.GetByID(ctx, id+100); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGormPostStore_ListAll(t *testing.T) {
	store, _ := newTestGormStore(t)

	early := insertTestPost(t, store, models.PostStatusScheduled, testNow.Add(-time.Hour))
	late := insertTestPost(t, store, models.PostStatusPublished, testNow.Add(time.Hour))
	tie := insertTestPost(t, store, models.PostStatusScheduled, testNow.Add(-time.Hour))

	posts, err := store.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	want := []uint{late, tie, early}
	if len(posts) != len(want) {
		t.Fatalf("got %d posts, want %d", len(posts), len(want))
	}
	for i, id := range want {
		if posts[i].ID != id {
			t.Errorf("posts[%d].ID = %d, want %d", i, posts[i].ID, id)
		}
	}
}

func TestGormPostStore_FindDue(t *testing.T) {
	store, _ := newTestGormStore(t)

	past := insertTestPost(t, store, models.PostStatusScheduled, testNow.Add(-time.Minute))
	exact := insertTestPost(t, store, models.PostStatusScheduled, testNow)
	insertTestPost(t, store, models.PostStatusScheduled, testNow.Add(time.Second))
	insertTestPost(t, store, models.PostStatusPublished, testNow.Add(-time.Hour))
	insertTestPost(t, store, models.PostStatusFailed, testNow.Add(-time.Hour))

	due, err := store.FindDue(context.Background(), testNow)
	if err != nil {
		t.Fatalf("FindDue failed: %v", err)
	}
	if len(due) != 2 || due[0].ID != past || due[1].ID != exact {
		t.Errorf("FindDue = %+v, want posts %d and %d", due, past, exact)
	}
}

func TestGormPostStore_UpdateStatus(t *testing.T) {
	tests := []struct {
		name    string
		initial models.PostStatus
		target  models.PostStatus
		wantErr error
		final   models.PostStatus
	}{
		{"Scheduled to published", models.PostStatusScheduled, models.PostStatusPublished, nil, models.PostStatusPublished},
		{"Scheduled to failed", models.PostStatusScheduled, models.PostStatusFailed, nil, models.PostStatusFailed},
		{"Published stays published", models.PostStatusPublished, models.PostStatusFailed, models.ErrNotFound, models.PostStatusPublished},
		{"Failed stays failed", models.PostStatusFailed, models.PostStatusPublished, models.ErrNotFound, models.PostStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestGormStore(t)
			ctx := context.Background()
			id := insertTestPost(t, store, tt.initial, testNow.Add(-time.Minute))

			var publishedAt *time.Time
			if tt.target == models.PostStatusPublished {
				at := testNow
				publishedAt = &at
			}

			err := store.UpdateStatus(ctx, id, tt.target, publishedAt)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("UpdateStatus failed: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("UpdateStatus error = %v, want %v", err, tt.wantErr)
			}

			post, err := store.GetByID(ctx, id)
			if err != nil {
				t.Fatalf("GetByID failed: %v", err)
			}
			if post.Status != tt.final {
				t.Errorf("Status = %q, want %q", post.Status, tt.final)
			}
			if tt.wantErr == nil && tt.final == models.PostStatusPublished &&
				(post.PublishedAt == nil || !post.PublishedAt.Equal(testNow)) {
				t.Errorf("PublishedAt = %v, want %v", post.PublishedAt, testNow)
			}
		})
	}
}

func TestGormPostStore_UpdateStatusRejectsScheduled(t *testing.T) {
	store, _ := newTestGormStore(t)
	id := insertTestPost(t, store, models.PostStatusScheduled, testNow)

	if err := store.UpdateStatus(context.Background(), id, models.PostStatusScheduled, nil); err == nil {
		t.Error("expected a non-terminal target status to be rejected")
	}
	if err := store.UpdateStatus(context.Background(), id+100, models.PostStatusPublished, nil); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a missing post, got %v", err)
	}
}

func TestGormPostStore_UpdateClearsMedia(t *testing.T) {
	store, _ := newTestGormStore(t)
	ctx := context.Background()
	id := insertTestPost(t, store, models.PostStatusScheduled, testNow)

	err := store.Update(ctx, id, PostUpdate{
		Caption:     "Edited",
		MediaType:   models.MediaTypeVideo,
		Platforms:   models.NewPlatformSet("whatsapp"),
		ScheduledAt: testNow.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	post, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if post.MediaReference != nil {
		t.Errorf("MediaReference = %q, want NULL", *post.MediaReference)
	}
	if post.Caption != "Edited" || post.MediaType != models.MediaTypeVideo || !post.ScheduledAt.Equal(testNow.Add(time.Hour)) {
		t.Errorf("unexpected post %+v", post)
	}
	if len(post.Platforms) != 1 || post.Platforms[0] != "whatsapp" {
		t.Errorf("Platforms = %q", post.Platforms)
	}
	if post.Status != models.PostStatusScheduled {
		t.Errorf("Status = %q, update must not touch it", post.Status)
	}
}

func TestGormPostStore_UpdateMissingPost(t *testing.T) {
	store, _ := newTestGormStore(t)
	ctx := context.Background()
	id := insertTestPost(t, store, models.PostStatusScheduled, testNow)
	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	err := store.Update(ctx, id, PostUpdate{
		Caption:     "Edited",
		MediaType:   models.MediaTypeImage,
		Platforms:   models.NewPlatformSet("instagram"),
		ScheduledAt: testNow,
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGormPostStore_DeleteRemovesAttempts(t *testing.T) {
	store, _ := newTestGormStore(t)
	ctx := context.Background()
	id := insertTestPost(t, store, models.PostStatusScheduled, testNow)
	other := insertTestPost(t, store, models.PostStatusScheduled, testNow)

	err := store.RecordAttempts(ctx, []models.PublishAttempt{
		{PostID: id, Platform: "instagram", Success: true, AttemptedAt: testNow},
		{PostID: other, Platform: "instagram", Success: true, AttemptedAt: testNow},
	})
	if err != nil {
		t.Fatalf("RecordAttempts failed: %v", err)
	}

	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.GetByID(ctx, id); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected deleted post to be gone, got %v", err)
	}
	if attempts, err := store.ListAttempts(ctx, id); err != nil || len(attempts) != 0 {
		t.Errorf("ListAttempts after delete = %+v, %v", attempts, err)
	}
	if attempts, err := store.ListAttempts(ctx, other); err != nil || len(attempts) != 1 {
		t.Errorf("attempts of another post = %+v, %v", attempts, err)
	}
	if err := store.Delete(ctx, id); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected second delete to report ErrNotFound, got %v", err)
	}
}

func TestGormPostStore_Summary(t *testing.T) {
	store, _ := newTestGormStore(t)
	ctx := context.Background()

	due := insertTestPost(t, store, models.PostStatusScheduled, testNow.Add(-time.Minute))
	insertTestPost(t, store, models.PostStatusScheduled, testNow.Add(time.Hour))
	published := insertTestPost(t, store, models.PostStatusPublished, testNow.Add(-2*time.Hour))
	failed := insertTestPost(t, store, models.PostStatusFailed, testNow.Add(-3*time.Hour))

	first := testNow.Add(-3 * time.Hour)
	second := testNow.Add(-2 * time.Hour)
	err := store.RecordAttempts(ctx, []models.PublishAttempt{
		{PostID: failed, Platform: "instagram", Success: false, AttemptedAt: first},
		{PostID: failed, Platform: "whatsapp", Success: true, AttemptedAt: first},
		{PostID: published, Platform: "instagram", Success: true, AttemptedAt: second},
	})
	if err != nil {
		t.Fatalf("RecordAttempts failed: %v", err)
	}

	summary, err := store.Summary(ctx, testNow)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}

	if summary.TotalPosts != 4 || summary.ScheduledPosts != 2 || summary.PublishedPosts != 1 || summary.FailedPosts != 1 {
		t.Errorf("unexpected counts %+v", summary)
	}
	if summary.DuePosts != 1 {
		t.Errorf("DuePosts = %d, want 1 (post %d)", summary.DuePosts, due)
	}
	if summary.LastPublishTime == nil || !summary.LastPublishTime.Equal(testNow.Add(-2*time.Hour)) {
		t.Errorf("LastPublishTime = %v", summary.LastPublishTime)
	}

	want := []struct {
		platform   string
		total      int64
		successful int64
		last       time.Time
	}{
		{"instagram", 2, 1, second},
		{"whatsapp", 1, 1, first},
	}
	if len(summary.Platforms) != len(want) {
		t.Fatalf("Platforms = %+v", summary.Platforms)
	}
	for i, w := range want {
		p := summary.Platforms[i]
		if p.Platform != w.platform || p.TotalAttempts != w.total || p.Successful != w.successful {
			t.Errorf("Platforms[%d] = %+v, want %+v", i, p, w)
		}
		if p.LastAttemptAt == nil || !p.LastAttemptAt.Equal(w.last) {
			t.Errorf("Platforms[%d].LastAttemptAt = %v, want %v", i, p.LastAttemptAt, w.last)
		}
	}
}
