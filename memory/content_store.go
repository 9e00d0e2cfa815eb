package memory

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/pilab-dev/shadow-social/domain"
)

type storedContent struct {
	contentType string
	filename    string
	data        []byte
}

// ContentStore keeps binary content in memory.
type ContentStore struct {
	mu       sync.RWMutex
	contents map[string]storedContent
}

func NewContentStore() *ContentStore {
	return &ContentStore{contents: make(map[string]storedContent)}
}

func (s *ContentStore) Save(_ context.Context, data *domain.BinaryData) (string, error) {
	b, err := io.ReadAll(data.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.contents[id] = storedContent{contentType: data.ContentType, filename: data.Filename, data: b}
	s.mu.Unlock()
	return id, nil
}

func (s *ContentStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contents[id]; !ok {
		return domain.ErrContentNotFound
	}
	delete(s.contents, id)
	return nil
}

// Load returns the stored bytes and content type of id.
func (s *ContentStore) Load(id string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contents[id]
	return c.data, c.contentType, ok
}

var _ domain.ContentStore = (*ContentStore)(nil)
