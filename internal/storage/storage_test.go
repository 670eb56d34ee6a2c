package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBackend struct {
	objects      map[string][]byte
	contentTypes map[string]string
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (m *memoryBackend) EnsureBucket(ctx context.Context) error { return nil }

func (m *memoryBackend) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.contentTypes[key] = contentType
	return nil
}

func (m *memoryBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryBackend) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memoryBackend) Bucket() string { return "test-bucket" }

func TestAvatarStorePutAndOpen(t *testing.T) {
	ctx := context.Background()
	backend := newMemoryBackend()
	avatars := NewAvatarStore(backend)

	payload := []byte("png-bytes")
	key, err := avatars.Put(ctx, "alice", bytes.NewReader(payload), int64(len(payload)), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "avatars/alice.png", key)
	assert.Equal(t, "image/png", backend.contentTypes[key])

	reader, err := avatars.Open(ctx, key)
	require.NoError(t, err)
	defer reader.Close()
	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestAvatarStoreOpenMissingObject(t *testing.T) {
	ctx := context.Background()
	avatars := NewAvatarStore(newMemoryBackend())

	_, err := avatars.Open(ctx, "avatars/ghost.png")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestAvatarStoreRejectsUnknownContentType(t *testing.T) {
	ctx := context.Background()
	avatars := NewAvatarStore(newMemoryBackend())

	_, err := avatars.Put(ctx, "alice", bytes.NewReader(nil), 0, "application/zip")
	assert.Error(t, err)
	_, err = avatars.Put(ctx, "alice", bytes.NewReader(nil), 0, "")
	assert.Error(t, err)
}

func TestAvatarStoreContentTypeNormalization(t *testing.T) {
	ctx := context.Background()
	avatars := NewAvatarStore(newMemoryBackend())

	key, err := avatars.Put(ctx, "bob", bytes.NewReader(nil), 0, " IMAGE/JPEG ")
	require.NoError(t, err)
	assert.Equal(t, "avatars/bob.jpg", key)
}
