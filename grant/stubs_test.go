package grant

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/dpup/grantrelay/errors"
	"github.com/dpup/grantrelay/logging"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

func testContext(t *testing.T) context.Context {
	return logging.With(t.Context(), logging.NewZapLogger(zap.NewNop()))
}

// stubVerifier accepts tokens of the form "valid:<subject>".
type stubVerifier struct {
	mu    sync.Mutex
	calls []string
}

func (v *stubVerifier) Verify(ctx context.Context, assertion string) (Subject, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, assertion)
	if len(assertion) > 6 && assertion[:6] == "valid:" {
		return Subject(assertion[6:]), nil
	}
	return "", errors.New("signature invalid")
}

// countingStore records every call it receives.
type countingStore struct {
	mu      sync.Mutex
	records map[Subject]CredentialRecord
	gets    int
	sets    int
	failSet error
	failGet error
}

func newCountingStore() *countingStore {
	return &countingStore{records: map[Subject]CredentialRecord{}}
}

func (s *countingStore) Get(ctx context.Context, subject Subject) (*CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.failGet != nil {
		return nil, s.failGet
	}
	rec, ok := s.records[subject]
	if !ok {
		return nil, errors.Mark(ErrNoCredentialOnFile, 0)
	}
	return &rec, nil
}

func (s *countingStore) Set(ctx context.Context, subject Subject, rec CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	if s.failSet != nil {
		return s.failSet
	}
	s.records[subject] = rec
	return nil
}

func (s *countingStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets + s.sets
}

// stubOAuth issues refresh tokens for known codes and rejects reused ones.
type stubOAuth struct {
	mu          sync.Mutex
	codes       map[string]string // code → refresh token
	used        map[string]bool
	exchanges   int
	refreshes   []string
	failRefresh bool
}

func newStubOAuth(codes map[string]string) *stubOAuth {
	return &stubOAuth{codes: codes, used: map[string]bool{}}
}

func (o *stubOAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.exchanges++
	rt, ok := o.codes[code]
	if !ok || o.used[code] {
		return nil, &oauth2.RetrieveError{ErrorCode: "invalid_grant", ErrorDescription: "Bad Request"}
	}
	o.used[code] = true
	return &oauth2.Token{AccessToken: "at_" + code, TokenType: "Bearer", RefreshToken: rt}, nil
}

func (o *stubOAuth) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refreshes = append(o.refreshes, refreshToken)
	if o.failRefresh {
		return nil, &oauth2.RetrieveError{ErrorCode: "invalid_grant", ErrorDescription: "Token has been expired or revoked."}
	}
	return &oauth2.Token{AccessToken: "fresh_" + refreshToken, TokenType: "Bearer"}, nil
}

// stubCalendar returns a fixed event list.
type stubCalendar struct {
	mu     sync.Mutex
	tokens []string
	err    error
}

func (c *stubCalendar) ListPrimaryEvents(ctx context.Context, token *oauth2.Token) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = append(c.tokens, token.AccessToken)
	if c.err != nil {
		return nil, c.err
	}
	return json.RawMessage(`[{"id":"e1"}]`), nil
}
