// Package storage stores uploaded media and returns stable references to it.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Object is a stored binary: the key deletes it, the URL serves it.
type Object struct {
	Key string
	URL string
}

// MediaStore stores binaries and returns a stable reference id plus a public URL.
type MediaStore interface {
	Upload(ctx context.Context, folder, filename string, r io.Reader, contentType string) (Object, error)
	Delete(ctx context.Context, key string) error
}

// ObjectKey builds a unique key under folder, keeping the file extension.
func ObjectKey(folder, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return uuid.NewString() + ext
	}
	return folder + "/" + uuid.NewString() + ext
}

// MemoryStore keeps objects in memory. It backs local development without an object
// store and the handler tests.
type MemoryStore struct {
	mu      sync.Mutex
	baseURL string
	objects map[string][]byte
	deleted []string
}

// NewMemoryStore returns an empty MemoryStore serving URLs under baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		objects: map[string][]byte{},
	}
}

// Upload stores the content of r.
func (m *MemoryStore) Upload(_ context.Context, folder, filename string, r io.Reader, _ string) (Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Object{}, fmt.Errorf("memory storage: read %s: %w", filename, err)
	}
	key := ObjectKey(folder, filename)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return Object{Key: key, URL: m.baseURL + "/" + key}, nil
}

// Delete removes key. Deleting an unknown key is not an error.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

// Has reports whether key is stored.
func (m *MemoryStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// Deleted returns the keys passed to Delete, in order.
func (m *MemoryStore) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}
