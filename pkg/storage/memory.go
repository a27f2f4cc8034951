package storage

import (
	"context"
	"sync"

	"github.com/fedloop/fedloop/pkg/errors"
)

type inMemoryStorage struct {
	sync.RWMutex

	data map[string]any
	keys []string
}

func NewInMemoryStorage() Storage {
	return &inMemoryStorage{
		data: make(map[string]any),
	}
}

func (s *inMemoryStorage) Create(_ context.Context, key string, value any) error {
	if key == "" {
		return errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.data[key]; ok {
		return errors.ErrEntityExists
	}

	s.data[key] = value
	s.keys = append(s.keys, key)

	return nil
}

func (s *inMemoryStorage) Get(_ context.Context, key string) (any, error) {
	if key == "" {
		return nil, errors.ErrEmptyKey
	}

	s.RLock()
	defer s.RUnlock()

	if val, ok := s.data[key]; ok {
		return val, nil
	}

	return nil, errors.ErrNotFound
}

func (s *inMemoryStorage) Update(_ context.Context, key string, value any) error {
	if key == "" {
		return errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.data[key]; !ok {
		return errors.ErrNotFound
	}

	s.data[key] = value

	return nil
}

// List returns entries in insertion order so pagination is stable.
func (s *inMemoryStorage) List(_ context.Context, offset, limit uint64) ([]any, uint64, error) {
	s.RLock()
	defer s.RUnlock()

	total := uint64(len(s.keys))
	if offset >= total {
		return nil, total, nil
	}

	end := offset + limit
	if end > total {
		end = total
	}

	result := make([]any, end-offset)
	for i := offset; i < end; i++ {
		result[i-offset] = s.data[s.keys[i]]
	}

	return result, total, nil
}

func (s *inMemoryStorage) Delete(_ context.Context, key string) error {
	if key == "" {
		return errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	delete(s.data, key)
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)

			break
		}
	}

	return nil
}
