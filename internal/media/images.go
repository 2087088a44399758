package media

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/fathima-sithara/delivery-service/internal/domain"
)

type Uploader interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// ImageService validates image attachments and stores them.
type ImageService struct {
	up       Uploader
	maxBytes int64
}

func NewImageService(up Uploader, maxBytes int64) *ImageService {
	return &ImageService{up: up, maxBytes: maxBytes}
}

// Store checks that data is a decodable image of an allowed type within the
// size limit, uploads it and returns its attachment reference.
func (s *ImageService) Store(ctx context.Context, userID, filename, contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty image", domain.ErrValidation)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: image larger than %d bytes", domain.ErrValidation, s.maxBytes)
	}
	contentType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	ext, ok := allowedTypes[contentType]
	if !ok {
		return "", fmt.Errorf("%w: unsupported content type %q", domain.ErrValidation, contentType)
	}
	if _, err := imaging.Decode(bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("%w: not a valid image: %v", domain.ErrValidation, err)
	}

	base := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	if base == "" || base == "." || base == "/" {
		base = "image"
	}
	key := fmt.Sprintf("attachments/%s/%s_%s%s", userID, uuid.NewString(), base, ext)
	ref, err := s.up.Upload(ctx, key, contentType, data)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return ref, nil
}
