package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ifuryst/postcast/internal/models"
	"github.com/ifuryst/postcast/internal/service"
	"github.com/ifuryst/postcast/internal/service/media"
	"github.com/ifuryst/postcast/pkg/util"
)

func (s *Server) handleCreatePost(c *gin.Context) {
	in, err := postInputFromForm(c)
	if err != nil {
		s.respondError(c, "create post", err)
		return
	}

	id, err := s.Posts.Create(c.Request.Context(), in)
	if err != nil {
		s.respondError(c, "create post", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id, "message": "Post scheduled"})
}

func (s *Server) handleListPosts(c *gin.Context) {
	posts, err := s.Posts.List(c.Request.Context())
	if err != nil {
		s.respondError(c, "list posts", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (s *Server) handleGetPost(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}

	post, err := s.Posts.Get(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, "get post", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"post": post})
}

func (s *Server) handleUpdatePost(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}

	in, err := postInputFromForm(c)
	if err != nil {
		s.respondError(c, "update post", err)
		return
	}

	post, err := s.Posts.Update(c.Request.Context(), id, in)
	if err != nil {
		s.respondError(c, "update post", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"post": post})
}

func (s *Server) handleDeletePost(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}

	if err := s.Posts.Delete(c.Request.Context(), id); err != nil {
		s.respondError(c, "delete post", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Post deleted"})
}

func (s *Server) handleListAttempts(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}

	attempts, err := s.Posts.ListAttempts(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, "list publish attempts", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}

// postInputFromForm reads a multipart or url-encoded post form. The media
// field is left nil when it was not submitted at all.
func postInputFromForm(c *gin.Context) (service.PostInput, error) {
	in := service.PostInput{
		Caption:     c.PostForm("caption"),
		MediaType:   c.PostForm("media_type"),
		Platforms:   util.ParsePlatforms(c.PostFormArray("platforms")...),
		ScheduledAt: c.PostForm("scheduled_at"),
	}

	if value, ok := c.GetPostForm("media"); ok {
		in.Media = &value
	}

	header, err := c.FormFile("file")
	switch {
	case err == nil:
		in.Upload = media.FromFileHeader(header)
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		return in, models.ValidationErrorf("invalid upload: %v", err)
	}

	return in, nil
}

func postID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post id"})
		return 0, false
	}
	return uint(id), true
}

func (s *Server) respondError(c *gin.Context, action string, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
	case errors.Is(err, models.ErrStoreUnavailable):
		s.Logger.Error("Store unavailable", zap.String("action", action), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
	default:
		s.Logger.Error("Failed to "+action, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + action})
	}
}
