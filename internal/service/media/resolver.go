package media

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/ifuryst/postcast/internal/models"
)

// AllowedExtensions lists the upload extensions accepted as post media.
var AllowedExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"gif":  {},
	"mp4":  {},
	"mov":  {},
	"avi":  {},
}

// IsAllowedFile reports whether the filename carries an allowed extension.
func IsAllowedFile(filename string) bool {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	_, ok := AllowedExtensions[ext]
	return ok
}

// Resolution is the outcome of reconciling submitted media with a post's
// stored reference. Nothing in it has been persisted to the post store yet.
type Resolution struct {
	// Reference is the value to store; nil clears the media.
	Reference *string
	// Saved is the reference of a file written while resolving. It must be
	// discarded if the post cannot be persisted.
	Saved string
	// Stale is the previously owned local file to delete once the new
	// reference is persisted.
	Stale string
}

// DeletePrevious reports whether the previously stored file is superseded.
func (r Resolution) DeletePrevious() bool {
	return r.Stale != ""
}

// Resolver maps uploads and media strings to canonical references and back to
// the URLs under which local files are served.
type Resolver struct {
	storage Storage
	baseURL string
}

func NewResolver(storage Storage, publicBaseURL string) *Resolver {
	if !strings.HasSuffix(publicBaseURL, "/") {
		publicBaseURL += "/"
	}
	return &Resolver{
		storage: storage,
		baseURL: publicBaseURL,
	}
}

// ResolveNew resolves media for a post that does not exist yet. Only an upload
// or an external URL is accepted; self-referential URLs are kept verbatim so a
// new post never claims a file owned by another post.
func (r *Resolver) ResolveNew(upload Upload, media *string) (Resolution, error) {
	if upload != nil {
		return r.store(upload, nil)
	}
	if media == nil || strings.TrimSpace(*media) == "" {
		return Resolution{}, models.ErrMissingMedia
	}

	external, err := externalURL(*media)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Reference: &external}, nil
}

// Resolve reconciles submitted media with the current reference of an
// existing post. media == nil means the field was not submitted at all.
func (r *Resolver) Resolve(upload Upload, media *string, current *string) (Resolution, error) {
	if upload != nil {
		return r.store(upload, current)
	}
	if media == nil {
		return Resolution{Reference: current}, nil
	}

	value := strings.TrimSpace(*media)
	switch {
	case value == "":
		return Resolution{Stale: r.ownedFile(current)}, nil

	case current != nil && value == *current:
		return Resolution{Reference: current}, nil

	case strings.HasPrefix(value, r.baseURL):
		ref, err := r.selfReference(value)
		if err != nil {
			return Resolution{}, err
		}
		res := Resolution{Reference: &ref}
		if current != nil && ref != *current {
			res.Stale = r.ownedFile(current)
		}
		return res, nil

	default:
		external, err := externalURL(value)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Reference: &external, Stale: r.ownedFile(current)}, nil
	}
}

// MediaURL returns the URL a client should use for ref. Local files that exist
// are served from the public base URL; anything else is passed through as is.
func (r *Resolver) MediaURL(ref *string) *string {
	if ref == nil || !IsLocalReference(*ref) || !r.storage.Exists(*ref) {
		return ref
	}

	clean, _ := CleanReference(*ref)
	segments := strings.Split(clean, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	served := r.baseURL + strings.Join(segments, "/")
	return &served
}

// IsLocalReference reports whether ref points into the storage area rather
// than at an external URL.
func IsLocalReference(ref string) bool {
	if strings.HasPrefix(ref, "//") || strings.Contains(ref, "://") {
		return false
	}
	_, ok := CleanReference(ref)
	return ok
}

func (r *Resolver) store(upload Upload, current *string) (Resolution, error) {
	name := upload.Filename()
	if strings.TrimSpace(name) == "" {
		return Resolution{}, models.ValidationErrorf("empty filename")
	}
	if !IsAllowedFile(name) {
		return Resolution{}, fmt.Errorf("%w: %q", models.ErrUnsupportedMediaType, path.Ext(name))
	}

	ref, err := r.storage.Save(upload)
	if err != nil {
		return Resolution{}, err
	}

	res := Resolution{Reference: &ref, Saved: ref}
	if current != nil && IsLocalReference(*current) {
		res.Stale = *current
	}
	return res, nil
}

// ownedFile returns the current reference when it is a local file that still
// exists, or "" otherwise.
func (r *Resolver) ownedFile(current *string) string {
	if current == nil || !IsLocalReference(*current) || !r.storage.Exists(*current) {
		return ""
	}
	return *current
}

func (r *Resolver) selfReference(value string) (string, error) {
	rest := strings.TrimPrefix(value, r.baseURL)
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}

	unescaped, err := url.PathUnescape(rest)
	if err != nil {
		return "", models.ValidationErrorf("invalid media URL %q", value)
	}
	ref, ok := CleanReference(unescaped)
	if !ok {
		return "", models.ValidationErrorf("invalid media URL %q", value)
	}
	return ref, nil
}

// externalURL accepts only absolute http(s) URLs so an external value can
// never be mistaken for a file in the storage area.
func externalURL(value string) (string, error) {
	value = strings.TrimSpace(value)
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", models.ValidationErrorf("media must be an http(s) URL, got %q", value)
	}
	return value, nil
}
