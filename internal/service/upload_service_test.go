package service

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough of a PNG for content sniffing.
var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 0x49, 0x48, 0x44, 0x52}

func TestLocalUploadStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocalUploadStore(dir, "http://localhost:3000/")
	require.NoError(t, err)

	url, err := store.Save(ctx, pngHeader)
	require.NoError(t, err)
	assert.Contains(t, url, "http://localhost:3000/uploads/")

	name, ok := store.Owns(url)
	require.True(t, ok)
	assert.Equal(t, ".png", filepath.Ext(name))

	_, err = os.Stat(filepath.Join(dir, name))
	require.NoError(t, err)

	assert.True(t, store.Delete(ctx, name))
	assert.False(t, store.Delete(ctx, name), "second delete finds nothing")
	assert.False(t, store.Delete(ctx, "../escape.png"))

	_, ok = store.Owns("https://cdn.instagram.com/x.jpg")
	assert.False(t, ok)
}

func TestLocalUploadStore_RejectsNonImages(t *testing.T) {
	store, err := NewLocalUploadStore(t.TempDir(), "http://localhost:3000")
	require.NoError(t, err)

	_, err = store.Save(context.Background(), []byte("just some text"))
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}

type mockR2 struct {
	mock.Mock
}

func (m *mockR2) PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *mockR2) HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.HeadObjectOutput), args.Error(1)
}

func (m *mockR2) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(*s3.DeleteObjectOutput), args.Error(1)
}

func TestR2UploadStore(t *testing.T) {
	ctx := context.Background()
	client := new(mockR2)
	store := newR2UploadStore(client, "posts", "https://pub.r2.dev/")

	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Bucket == "posts" && *in.ContentType == "image/png" && in.Body != nil
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	url, err := store.Save(ctx, bytes.Clone(pngHeader))
	require.NoError(t, err)

	name, ok := store.Owns(url)
	require.True(t, ok)

	client.On("HeadObject", mock.Anything, mock.Anything).Return(&s3.HeadObjectOutput{}, nil).Once()
	client.On("DeleteObject", mock.Anything, mock.Anything).Return(&s3.DeleteObjectOutput{}, nil).Once()
	assert.True(t, store.Delete(ctx, name))

	client.On("HeadObject", mock.Anything, mock.Anything).Return(nil, &types.NotFound{}).Once()
	assert.False(t, store.Delete(ctx, name))

	client.AssertExpectations(t)
}
