package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dpup/grantrelay/grant"
	"github.com/dpup/grantrelay/logging"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testProject = "oauth-flows"

var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

type certServer struct {
	*httptest.Server
	key     *rsa.PrivateKey
	fetches atomic.Int32
}

func newCertServer(t *testing.T, kid string) *certServer {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "securetoken.system.gserviceaccount.com"},
		NotBefore:    testNow.Add(-time.Hour),
		NotAfter:     testNow.Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	cs := &certServer{key: key}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.fetches.Add(1)
		w.Header().Set("Cache-Control", "public, max-age=3600, must-revalidate, no-transform")
		_ = json.NewEncoder(w).Encode(map[string]string{
			kid:     string(certPEM),
			"bogus": "not a certificate",
		})
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *certServer) sign(t *testing.T, kid string, claims jwt.Claims) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(cs.key)
	require.NoError(t, err)
	return s
}

func validClaims() *firebaseClaims {
	return &firebaseClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "https://securetoken.google.com/" + testProject,
			Audience:  jwt.ClaimStrings{testProject},
			IssuedAt:  jwt.NewNumericDate(testNow.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
		},
		AuthTime: jwt.NewNumericDate(testNow.Add(-time.Minute)),
	}
}

func testContext() context.Context {
	return logging.With(context.Background(), logging.NewZapLogger(zap.NewNop()))
}

func TestFirebase_Verify(t *testing.T) {
	cs := newCertServer(t, "k1")

	tests := []struct {
		name            string
		token           func() string
		expectedSubject grant.Subject
		expectedErr     string
	}{
		{
			name:            "valid",
			token:           func() string { return cs.sign(t, "k1", validClaims()) },
			expectedSubject: "u1",
		},
		{
			name: "wrong audience",
			token: func() string {
				c := validClaims()
				c.Audience = jwt.ClaimStrings{"other-project"}
				return cs.sign(t, "k1", c)
			},
			expectedErr: "token has invalid audience",
		},
		{
			name: "wrong issuer",
			token: func() string {
				c := validClaims()
				c.Issuer = "https://accounts.google.com"
				return cs.sign(t, "k1", c)
			},
			expectedErr: "token has invalid issuer",
		},
		{
			name: "expired",
			token: func() string {
				c := validClaims()
				c.ExpiresAt = jwt.NewNumericDate(testNow.Add(-time.Hour))
				return cs.sign(t, "k1", c)
			},
			expectedErr: "token is expired",
		},
		{
			name: "unknown kid",
			token: func() string {
				return cs.sign(t, "k2", validClaims())
			},
			expectedErr: `no certificate for kid "k2"`,
		},
		{
			name: "empty subject",
			token: func() string {
				c := validClaims()
				c.Subject = ""
				return cs.sign(t, "k1", c)
			},
			expectedErr: "empty subject",
		},
		{
			name: "subject too long",
			token: func() string {
				c := validClaims()
				c.Subject = strings.Repeat("x", 129)
				return cs.sign(t, "k1", c)
			},
			expectedErr: "subject longer than 128 characters",
		},
		{
			name: "auth time in the future",
			token: func() string {
				c := validClaims()
				c.AuthTime = jwt.NewNumericDate(testNow.Add(time.Hour))
				return cs.sign(t, "k1", c)
			},
			expectedErr: "auth_time is in the future",
		},
		{
			name: "hmac signed",
			token: func() string {
				tok := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims())
				tok.Header["kid"] = "k1"
				s, err := tok.SignedString([]byte("secret"))
				require.NoError(t, err)
				return s
			},
			expectedErr: "signing method HS256 is invalid",
		},
		{
			name:        "garbage",
			token:       func() string { return "not-a-jwt" },
			expectedErr: "token is malformed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFirebase(testProject, WithCertsURL(cs.URL), WithClock(func() time.Time { return testNow }))

			subject, err := f.Verify(testContext(), tt.token())
			if tt.expectedErr != "" {
				require.ErrorIs(t, err, ErrInvalidToken)
				assert.ErrorContains(t, err, tt.expectedErr)
				assert.Empty(t, subject)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedSubject, subject)
		})
	}
}

func TestFirebase_CachesCertificates(t *testing.T) {
	cs := newCertServer(t, "k1")
	now := testNow
	f := NewFirebase(testProject, WithCertsURL(cs.URL), WithClock(func() time.Time { return now }))

	for range 3 {
		_, err := f.Verify(testContext(), cs.sign(t, "k1", validClaims()))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), cs.fetches.Load())

	// Past max-age the set is fetched again.
	now = testNow.Add(61 * time.Minute)
	c := validClaims()
	c.ExpiresAt = jwt.NewNumericDate(now.Add(time.Hour))
	_, err := f.Verify(testContext(), cs.sign(t, "k1", c))
	require.NoError(t, err)
	assert.Equal(t, int32(2), cs.fetches.Load())
}

func TestFirebase_UnknownKidUsesCachedSet(t *testing.T) {
	cs := newCertServer(t, "k1")
	f := NewFirebase(testProject, WithCertsURL(cs.URL), WithClock(func() time.Time { return testNow }))

	for range 20 {
		_, err := f.Verify(testContext(), cs.sign(t, "rotated-away", validClaims()))
		require.ErrorIs(t, err, ErrInvalidToken)
		assert.ErrorContains(t, err, `no certificate for kid "rotated-away"`)
	}
	assert.Equal(t, int32(1), cs.fetches.Load())

	sub, err := f.Verify(testContext(), cs.sign(t, "k1", validClaims()))
	require.NoError(t, err)
	assert.Equal(t, grant.Subject("u1"), sub)
	assert.Equal(t, int32(1), cs.fetches.Load())
}

func TestFirebase_ConcurrentRefreshSharesFetch(t *testing.T) {
	cs := newCertServer(t, "k1")
	f := NewFirebase(testProject, WithCertsURL(cs.URL), WithClock(func() time.Time { return testNow }))
	token := cs.sign(t, "k1", validClaims())

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Verify(testContext(), token)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), cs.fetches.Load())
}

func TestFirebase_FailedFetchIsNotRetriedImmediately(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	cs := newCertServer(t, "k1")

	now := testNow
	f := NewFirebase(testProject, WithCertsURL(srv.URL), WithClock(func() time.Time { return now }))
	for range 5 {
		_, err := f.Verify(testContext(), cs.sign(t, "k1", validClaims()))
		assert.ErrorContains(t, err, "status 503")
	}
	assert.Equal(t, int32(1), calls.Load())

	now = testNow.Add(fetchRetryInterval)
	_, err := f.Verify(testContext(), cs.sign(t, "k1", validClaims()))
	assert.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFirebase_CertificateServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	cs := newCertServer(t, "k1")

	f := NewFirebase(testProject, WithCertsURL(srv.URL), WithClock(func() time.Time { return testNow }))
	_, err := f.Verify(testContext(), cs.sign(t, "k1", validClaims()))
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorContains(t, err, "status 503")
}

func TestMaxAge(t *testing.T) {
	tests := []struct {
		header   string
		expected time.Duration
	}{
		{"public, max-age=19204, must-revalidate, no-transform", 19204 * time.Second},
		{"MAX-AGE=60", time.Minute},
		{"no-cache", defaultKeysTTL},
		{"max-age=abc", defaultKeysTTL},
		{"", defaultKeysTTL},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.expected, maxAge(tt.header))
		})
	}
}
