package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dpup/grantrelay/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
)

func testContext() context.Context {
	return logging.With(context.Background(), logging.NewZapLogger(zap.NewNop()))
}

// tokenServer mimics Google's token endpoint. Codes are single use.
type tokenServer struct {
	*httptest.Server

	mu        sync.Mutex
	codes     map[string]string
	refreshes []string
	redirects []string
}

func newTokenServer(t *testing.T) *tokenServer {
	ts := &tokenServer{codes: map[string]string{"c1": "rt_1"}}
	ts.Server = httptest.NewServer(http.HandlerFunc(ts.serveHTTP))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) serveHTTP(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if r.FormValue("client_id") != "cid" || r.FormValue("client_secret") != "secret" {
		writeTokenJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_client"})
		return
	}

	switch r.FormValue("grant_type") {
	case "authorization_code":
		ts.redirects = append(ts.redirects, r.FormValue("redirect_uri"))
		rt, ok := ts.codes[r.FormValue("code")]
		if !ok {
			writeTokenJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant", "error_description": "Bad Request"})
			return
		}
		delete(ts.codes, r.FormValue("code"))
		writeTokenJSON(w, http.StatusOK, map[string]any{
			"access_token":  "at_first",
			"refresh_token": rt,
			"token_type":    "Bearer",
			"expires_in":    3599,
		})

	case "refresh_token":
		rt := r.FormValue("refresh_token")
		ts.refreshes = append(ts.refreshes, rt)
		if rt != "rt_1" {
			writeTokenJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant", "error_description": "Token has been expired or revoked."})
			return
		}
		writeTokenJSON(w, http.StatusOK, map[string]any{
			"access_token": "at_" + string(rune('0'+len(ts.refreshes))),
			"token_type":   "Bearer",
			"expires_in":   3599,
		})

	default:
		writeTokenJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"})
	}
}

func (ts *tokenServer) seen() (redirects, refreshes []string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.redirects...), append([]string(nil), ts.refreshes...)
}

func writeTokenJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newTestPlugin(t *testing.T, opts ...GoogleOption) (*GooglePlugin, *tokenServer) {
	ts := newTokenServer(t)
	p := Plugin(append([]GoogleOption{
		WithClient("cid", "secret"),
		WithTokenURL(ts.URL),
	}, opts...)...)
	return p, ts
}

func TestPlugin_Defaults(t *testing.T) {
	p := Plugin()
	assert.Equal(t, PluginName, p.Name())
	assert.Equal(t, PostMessageRedirect, p.config.RedirectURL)
	assert.Equal(t, "https://oauth2.googleapis.com/token", p.config.Endpoint.TokenURL)
	assert.Equal(t, []string{calendar.CalendarReadonlyScope}, p.config.Scopes)
}

func TestPlugin_Init(t *testing.T) {
	tests := []struct {
		name        string
		opts        []GoogleOption
		expectedErr string
	}{
		{"configured", []GoogleOption{WithClient("cid", "secret")}, ""},
		{"no client id", []GoogleOption{WithClient("", "secret")}, "missing client id"},
		{"no client secret", []GoogleOption{WithClient("cid", "")}, "missing client secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Plugin(tt.opts...).Init(testContext(), nil)
			if tt.expectedErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.expectedErr)
		})
	}
}

func TestExchange(t *testing.T) {
	p, ts := newTestPlugin(t)

	tok, err := p.Exchange(testContext(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "rt_1", tok.RefreshToken)
	assert.Equal(t, "at_first", tok.AccessToken)
	redirects, _ := ts.seen()
	assert.Equal(t, []string{"postmessage"}, redirects)
}

func TestExchange_ReplayedCode(t *testing.T) {
	p, _ := newTestPlugin(t)

	_, err := p.Exchange(testContext(), "c1")
	require.NoError(t, err)

	_, err = p.Exchange(testContext(), "c1")
	require.Error(t, err)

	var re *oauth2.RetrieveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "invalid_grant", re.ErrorCode)
}

func TestExchange_BadClient(t *testing.T) {
	p, _ := newTestPlugin(t, WithClient("cid", "wrong"))

	_, err := p.Exchange(testContext(), "c1")
	var re *oauth2.RetrieveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "invalid_client", re.ErrorCode)
}

func TestRefresh_HitsEndpointEveryCall(t *testing.T) {
	p, ts := newTestPlugin(t)

	first, err := p.Refresh(testContext(), "rt_1")
	require.NoError(t, err)
	second, err := p.Refresh(testContext(), "rt_1")
	require.NoError(t, err)

	_, refreshes := ts.seen()
	assert.Equal(t, []string{"rt_1", "rt_1"}, refreshes)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.Equal(t, "rt_1", second.RefreshToken, "refresh token is carried over when none is returned")
}

func TestRefresh_Revoked(t *testing.T) {
	p, _ := newTestPlugin(t)

	_, err := p.Refresh(testContext(), "rt_revoked")
	var re *oauth2.RetrieveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "invalid_grant", re.ErrorCode)
}

type authLog struct {
	mu    sync.Mutex
	auths []string
}

func (l *authLog) add(a string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.auths = append(l.auths, a)
}

func (l *authLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.auths...)
}

func newCalendarServer(t *testing.T, status int) (*httptest.Server, *authLog) {
	auths := &authLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auths.add(r.Header.Get("Authorization"))
		if r.URL.Path != "/calendar/v3/calendars/primary/events" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"code":401,"message":"Invalid Credentials"}}`))
			return
		}
		_, _ = w.Write([]byte(`{
			"kind": "calendar#events",
			"summary": "u1@example.com",
			"items": [
				{"id": "e1", "summary": "Standup", "start": {"dateTime": "2026-10-16T09:00:00Z"}},
				{"id": "e2", "summary": "Lunch"}
			]
		}`))
	}))
	t.Cleanup(srv.Close)
	return srv, auths
}

func TestListPrimaryEvents(t *testing.T) {
	srv, auths := newCalendarServer(t, http.StatusOK)
	p := Plugin(WithCalendarEndpoint(srv.URL + "/calendar/v3/"))

	raw, err := p.ListPrimaryEvents(testContext(), &oauth2.Token{AccessToken: "at_1", TokenType: "Bearer"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer at_1"}, auths.all())

	var events calendar.Events
	require.NoError(t, json.Unmarshal(raw, &events))
	assert.Equal(t, "calendar#events", events.Kind)
	require.Len(t, events.Items, 2)
	assert.Equal(t, "e1", events.Items[0].Id)
	assert.Equal(t, "Standup", events.Items[0].Summary)
	assert.Equal(t, "2026-10-16T09:00:00Z", events.Items[0].Start.DateTime)
}

func TestListPrimaryEvents_APIError(t *testing.T) {
	srv, auths := newCalendarServer(t, http.StatusUnauthorized)
	p := Plugin(WithCalendarEndpoint(srv.URL + "/calendar/v3/"))

	_, err := p.ListPrimaryEvents(testContext(), &oauth2.Token{AccessToken: "stale"})
	assert.ErrorContains(t, err, "google: listing events")
	assert.Len(t, auths.all(), 1, "calendar is called once, without retries")
}
