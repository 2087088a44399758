package media

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/delivery-service/internal/domain"
)

type fakeUploader struct {
	key, contentType string
	err              error
}

func (f *fakeUploader) Upload(_ context.Context, key, contentType string, _ []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.key, f.contentType = key, contentType
	return "https://cdn.test/" + key, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(4, 4, color.White), imaging.PNG))
	return buf.Bytes()
}

func TestStoreImage(t *testing.T) {
	up := &fakeUploader{}
	s := NewImageService(up, 1<<20)

	ref, err := s.Store(context.Background(), "u1", "holiday photo.png", "image/png", pngBytes(t))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(up.key, "attachments/u1/"))
	assert.True(t, strings.HasSuffix(up.key, "_holiday photo.png"))
	assert.Equal(t, "https://cdn.test/"+up.key, ref)
}

func TestStoreImageRejects(t *testing.T) {
	s := NewImageService(&fakeUploader{}, 64)
	ctx := context.Background()

	_, err := s.Store(ctx, "u1", "a.png", "image/png", nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = s.Store(ctx, "u1", "a.png", "image/png", bytes.Repeat([]byte{1}, 65))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = s.Store(ctx, "u1", "a.txt", "text/plain", []byte("hello"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = s.Store(ctx, "u1", "a.png", "image/png", []byte("not an image"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStoreImageUploadFailure(t *testing.T) {
	s := NewImageService(&fakeUploader{err: errors.New("access denied")}, 0)
	_, err := s.Store(context.Background(), "u1", "a.png", "image/png", pngBytes(t))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrValidation)
}

func TestObjectRef(t *testing.T) {
	assert.Equal(t, "https://b.s3.eu-west-1.amazonaws.com/a%2Fx.png", objectRef("b", "eu-west-1", "a/x.png", true))
	assert.Equal(t, "s3://b/a/x.png", objectRef("b", "eu-west-1", "a/x.png", false))
}
