package services

import (
	"context"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/wellnest/apiserver/internal/apperr"
	"github.com/wellnest/apiserver/types"
)

// MaxImageBytes is the largest accepted session image.
const MaxImageBytes = 5 << 20

// ImageStore is the object storage used for session images.
// *storage.Storage satisfies it.
type ImageStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	URL(key string) string
}

// ImageUpload describes an uploaded image file.
type ImageUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ImageService stores session thumbnails.
type ImageService struct {
	store ImageStore
}

func NewImageService(store ImageStore) *ImageService {
	return &ImageService{store: store}
}

// Upload stores the image under a key scoped to the caller and returns the
// URL clients should put into a session's imageUrl.
func (s *ImageService) Upload(ctx context.Context, caller types.Identity, upload ImageUpload) (string, error) {
	if upload.Body == nil || upload.Size <= 0 {
		return "", apperr.Validation("Image file is required.")
	}
	if upload.Size > MaxImageBytes {
		return "", apperr.Validation("Image must be 5 MB or smaller.")
	}

	mediaType, _, err := mime.ParseMediaType(upload.ContentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return "", apperr.Validation("Only image uploads are allowed.")
	}

	key := imageKey(caller.ID, upload.Filename, mediaType)
	if err := s.store.Put(ctx, key, io.LimitReader(upload.Body, upload.Size), upload.Size, mediaType); err != nil {
		return "", apperr.Internal("Image upload failed.", err)
	}
	return s.store.URL(key), nil
}

func imageKey(owner uuid.UUID, filename, mediaType string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(filename, `\`, "/"))))
	if !validImageExt(ext) {
		ext = ""
		if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return "sessions/" + owner.String() + "/" + uuid.NewString() + ext
}

func validImageExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 6 {
		return false
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
