package storage_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/vidtube/backend/pkg/storage"
)

func TestObjectKeyKeepsExtension(t *testing.T) {
	key := storage.ObjectKey("/avatars/", "Me.PNG")
	assert.True(t, strings.HasPrefix(key, "avatars/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.NotEqual(t, key, storage.ObjectKey("avatars", "Me.PNG"))
}

func TestMemoryStoreUploadDelete(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemoryStore("http://localhost:8080/media/")

	obj, err := m.Upload(ctx, "covers", "cover.jpg", strings.NewReader("bytes"), "image/jpeg")
	require.NoError(t, err)
	assert.True(t, m.Has(obj.Key))
	assert.Equal(t, "http://localhost:8080/media/"+obj.Key, obj.URL)

	require.NoError(t, m.Delete(ctx, obj.Key))
	assert.False(t, m.Has(obj.Key))
	assert.Equal(t, []string{obj.Key}, m.Deleted())
}

func TestNewS3StorageRequiresBucket(t *testing.T) {
	_, err := storage.NewS3Storage(context.Background(), storage.S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}
