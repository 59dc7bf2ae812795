package media

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ifuryst/postcast/internal/models"
	"github.com/ifuryst/postcast/pkg/util"
)

// Upload is a file submitted by a caller that has not been stored yet.
type Upload interface {
	Filename() string
	Open() (io.ReadCloser, error)
}

type fileHeaderUpload struct {
	header *multipart.FileHeader
}

// FromFileHeader adapts a multipart file header to an Upload.
func FromFileHeader(header *multipart.FileHeader) Upload {
	if header == nil {
		return nil
	}
	return fileHeaderUpload{header: header}
}

func (u fileHeaderUpload) Filename() string { return u.header.Filename }

func (u fileHeaderUpload) Open() (io.ReadCloser, error) { return u.header.Open() }

// Storage persists uploaded media. References are canonical: relative to the
// storage root and always separated by forward slashes.
type Storage interface {
	Exists(ref string) bool
	Save(upload Upload) (string, error)
	Delete(ref string) error
}

// LocalStorage keeps media files in a directory on the host filesystem.
type LocalStorage struct {
	root     string
	maxBytes int64
	now      func() time.Time
}

func NewLocalStorage(root string, maxBytes int64) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{
		root:     root,
		maxBytes: maxBytes,
		now:      time.Now,
	}, nil
}

// Root returns the host directory backing the storage area.
func (s *LocalStorage) Root() string {
	return s.root
}

func (s *LocalStorage) Exists(ref string) bool {
	hostPath, err := s.hostPath(ref)
	if err != nil {
		return false
	}
	info, err := os.Stat(hostPath)
	return err == nil && info.Mode().IsRegular()
}

// Save copies the upload into a dated sub-directory under a collision-free name
// and returns its canonical reference.
func (s *LocalStorage) Save(upload Upload) (string, error) {
	name := util.SecureFilename(upload.Filename())
	if name == "" {
		name = "upload" + strings.ToLower(path.Ext(upload.Filename()))
	}

	ref := path.Join(s.now().UTC().Format("2006/01/02"), uuid.NewString()+"_"+name)
	hostPath, err := s.hostPath(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(hostPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	src, err := upload.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(hostPath)
	if err != nil {
		return "", fmt.Errorf("failed to create media file: %w", err)
	}

	var reader io.Reader = src
	if s.maxBytes > 0 {
		reader = &io.LimitedReader{R: src, N: s.maxBytes + 1}
	}
	written, copyErr := io.Copy(dst, reader)
	closeErr := dst.Close()

	switch {
	case copyErr != nil:
		_ = os.Remove(hostPath)
		return "", fmt.Errorf("failed to write media file: %w", copyErr)
	case closeErr != nil:
		_ = os.Remove(hostPath)
		return "", fmt.Errorf("failed to write media file: %w", closeErr)
	case s.maxBytes > 0 && written > s.maxBytes:
		_ = os.Remove(hostPath)
		return "", models.ValidationErrorf("file exceeds %d bytes", s.maxBytes)
	}

	return ref, nil
}

// Delete removes a stored file. Missing files are not an error.
func (s *LocalStorage) Delete(ref string) error {
	hostPath, err := s.hostPath(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(hostPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete media file: %w", err)
	}
	return nil
}

// hostPath converts a canonical reference to a path on the host, refusing
// anything that would leave the storage root.
func (s *LocalStorage) hostPath(ref string) (string, error) {
	clean, ok := CleanReference(ref)
	if !ok {
		return "", models.ValidationErrorf("invalid media reference %q", ref)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// CleanReference normalises a canonical reference. It returns false for
// empty, absolute or parent-escaping references.
func CleanReference(ref string) (string, bool) {
	ref = strings.ReplaceAll(ref, "\\", "/")
	if ref == "" || strings.HasPrefix(ref, "/") {
		return "", false
	}
	clean := path.Clean(ref)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return clean, true
}
