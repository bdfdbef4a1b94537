package devoauth

import (
	"context"
	"sync"

	"github.com/go-oauth2/oauth2/v4"
	oautherrors "github.com/go-oauth2/oauth2/v4/errors"
	"github.com/go-oauth2/oauth2/v4/models"
)

// clientStore holds the fixed set of clients the server accepts.
type clientStore struct {
	clients map[string]oauth2.ClientInfo
}

func newClientStore(clients ...oauth2.ClientInfo) *clientStore {
	s := &clientStore{clients: make(map[string]oauth2.ClientInfo, len(clients))}
	for _, c := range clients {
		s.clients[c.GetID()] = c
	}
	return s
}

// GetByID implements oauth2.ClientStore.
func (s *clientStore) GetByID(ctx context.Context, id string) (oauth2.ClientInfo, error) {
	c, ok := s.clients[id]
	if !ok {
		return nil, oautherrors.ErrInvalidClient
	}
	return c, nil
}

// tokenStore indexes issued tokens by code, access and refresh token. Lookups
// of unknown values return nil without an error, which the manager reports as
// an invalid code or token. Tokens are copied in and out since the manager
// mutates the values it loads.
type tokenStore struct {
	mu      sync.RWMutex
	codes   map[string]oauth2.TokenInfo
	access  map[string]oauth2.TokenInfo
	refresh map[string]oauth2.TokenInfo
}

func newTokenStore() *tokenStore {
	return &tokenStore{
		codes:   make(map[string]oauth2.TokenInfo),
		access:  make(map[string]oauth2.TokenInfo),
		refresh: make(map[string]oauth2.TokenInfo),
	}
}

// Create implements oauth2.TokenStore.
func (s *tokenStore) Create(ctx context.Context, info oauth2.TokenInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info = clone(info)
	if code := info.GetCode(); code != "" {
		s.codes[code] = info
		return nil
	}
	if access := info.GetAccess(); access != "" {
		s.access[access] = info
	}
	if refresh := info.GetRefresh(); refresh != "" {
		s.refresh[refresh] = info
	}
	return nil
}

// RemoveByCode implements oauth2.TokenStore.
func (s *tokenStore) RemoveByCode(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, code)
	return nil
}

// RemoveByAccess implements oauth2.TokenStore.
func (s *tokenStore) RemoveByAccess(ctx context.Context, access string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.access, access)
	return nil
}

// RemoveByRefresh implements oauth2.TokenStore.
func (s *tokenStore) RemoveByRefresh(ctx context.Context, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refresh, refresh)
	return nil
}

// GetByCode implements oauth2.TokenStore.
func (s *tokenStore) GetByCode(ctx context.Context, code string) (oauth2.TokenInfo, error) {
	return s.get(s.codes, code), nil
}

// GetByAccess implements oauth2.TokenStore.
func (s *tokenStore) GetByAccess(ctx context.Context, access string) (oauth2.TokenInfo, error) {
	return s.get(s.access, access), nil
}

// GetByRefresh implements oauth2.TokenStore.
func (s *tokenStore) GetByRefresh(ctx context.Context, refresh string) (oauth2.TokenInfo, error) {
	return s.get(s.refresh, refresh), nil
}

func (s *tokenStore) get(m map[string]oauth2.TokenInfo, key string) oauth2.TokenInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ti, ok := m[key]; ok {
		return clone(ti)
	}
	return nil
}

func clone(ti oauth2.TokenInfo) oauth2.TokenInfo {
	if t, ok := ti.(*models.Token); ok {
		c := *t
		return &c
	}
	return ti
}
