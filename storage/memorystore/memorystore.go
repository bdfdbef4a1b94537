// Package memorystore implements storage.Store in a purely in-memory manner.
// Records are held as JSON so callers never share memory with the store.
package memorystore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dpup/grantrelay/errors"
	"github.com/dpup/grantrelay/storage"
)

// New returns a store that provides transient, in-memory storage.
func New() storage.Store {
	return &store{
		data: map[string]map[string][]byte{},
	}
}

type store struct {
	// data[tableName][entityID] = JSON
	data map[string]map[string][]byte
	mu   sync.RWMutex
}

func (s *store) Read(ctx context.Context, id string, model storage.Model) error {
	if err := storage.ValidateReceiver(model); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.data[storage.Name(model)][id]
	if !ok {
		return errors.Mark(storage.ErrNotFound, 0)
	}
	if err := json.Unmarshal(b, model); err != nil {
		return errors.Errorf("%w: %s", storage.ErrInvalidModel, err)
	}
	return nil
}

func (s *store) Upsert(ctx context.Context, models ...storage.Model) error {
	// Encode everything first so a bad model leaves the store untouched.
	encoded := make([][]byte, len(models))
	for i, m := range models {
		b, err := json.Marshal(m)
		if err != nil {
			return errors.Errorf("%w: %s", storage.ErrInvalidModel, err)
		}
		encoded[i] = b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range models {
		n := storage.Name(m)
		if s.data[n] == nil {
			s.data[n] = map[string][]byte{}
		}
		s.data[n][m.PK()] = encoded[i]
	}
	return nil
}

func (s *store) Exists(ctx context.Context, id string, model storage.Model) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[storage.Name(model)][id]
	return ok, nil
}
