package identity

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dpup/grantrelay/errors"
	"github.com/dpup/grantrelay/grant"
	"github.com/dpup/grantrelay/logging"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// Public x509 certificates used to sign Firebase ID tokens.
const SecureTokenCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

const (
	firebaseIssuerPrefix = "https://securetoken.google.com/"
	maxSubjectLength     = 128
	defaultKeysTTL       = time.Hour
	fetchTimeout         = 10 * time.Second
	fetchRetryInterval   = 5 * time.Second
)

// FirebaseOption customizes a Firebase verifier.
type FirebaseOption func(*Firebase)

// WithCertsURL overrides where signing certificates are fetched from.
func WithCertsURL(url string) FirebaseOption {
	return func(f *Firebase) {
		f.certsURL = url
	}
}

// WithHTTPClient sets the client used to fetch signing certificates.
func WithHTTPClient(c *http.Client) FirebaseOption {
	return func(f *Firebase) {
		f.client = c
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) FirebaseOption {
	return func(f *Firebase) {
		f.now = now
	}
}

// Firebase verifies Firebase Authentication ID tokens: RS256 signed JWTs with
// issuer `https://securetoken.google.com/<projectId>` and audience
// `<projectId>`. The subject is the Firebase user ID.
type Firebase struct {
	projectID string
	certsURL  string
	client    *http.Client
	now       func() time.Time

	refresh  singleflight.Group
	mu       sync.Mutex
	keys     map[string]*rsa.PublicKey
	expires  time.Time
	fetchErr error
	retryAt  time.Time
}

// NewFirebase returns a verifier for tokens issued to projectID.
func NewFirebase(projectID string, opts ...FirebaseOption) *Firebase {
	f := &Firebase{
		projectID: projectID,
		certsURL:  SecureTokenCertsURL,
		client:    http.DefaultClient,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type firebaseClaims struct {
	jwt.RegisteredClaims
	AuthTime *jwt.NumericDate `json:"auth_time,omitempty"`
}

// Verify implements grant.Verifier.
func (f *Firebase) Verify(ctx context.Context, assertion string) (grant.Subject, error) {
	claims := &firebaseClaims{}
	_, err := jwt.ParseWithClaims(
		assertion,
		claims,
		func(token *jwt.Token) (any, error) {
			kid, _ := token.Header["kid"].(string)
			return f.key(ctx, kid)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(firebaseIssuerPrefix+f.projectID),
		jwt.WithAudience(f.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(leeway),
		jwt.WithTimeFunc(f.now),
	)
	if err != nil {
		return "", invalid(err)
	}

	switch {
	case claims.Subject == "":
		return "", invalid(errors.New("empty subject"))
	case len(claims.Subject) > maxSubjectLength:
		return "", invalid(errors.New("subject longer than 128 characters"))
	case claims.AuthTime != nil && claims.AuthTime.After(f.now().Add(leeway)):
		return "", invalid(errors.New("auth_time is in the future"))
	}
	return grant.Subject(claims.Subject), nil
}

// key returns the public key for kid. A cached set answers until it expires,
// so an unknown kid never triggers a fetch while the set is fresh. Concurrent
// refreshes share one request, and a failed fetch isn't retried for
// fetchRetryInterval.
func (f *Firebase) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, errors.New("missing kid header")
	}

	keys, err := f.currentKeys(ctx)
	if err != nil {
		return nil, err
	}
	if k, ok := keys[kid]; ok {
		return k, nil
	}
	return nil, errors.Errorf("no certificate for kid %q", kid)
}

// cached returns the key set if it is still fresh, or the last fetch error
// while retries are held back.
func (f *Firebase) cached() (map[string]*rsa.PublicKey, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	switch {
	case f.keys != nil && now.Before(f.expires):
		return f.keys, true, nil
	case f.fetchErr != nil && now.Before(f.retryAt):
		return nil, true, f.fetchErr
	}
	return nil, false, nil
}

func (f *Firebase) currentKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	if keys, ok, err := f.cached(); ok {
		return keys, err
	}
	v, err, _ := f.refresh.Do("certs", func() (any, error) {
		if keys, ok, err := f.cached(); ok {
			return keys, err
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		keys, ttl, err := f.fetchKeys(fetchCtx)

		f.mu.Lock()
		defer f.mu.Unlock()
		if err != nil {
			f.fetchErr = err
			f.retryAt = f.now().Add(fetchRetryInterval)
			return nil, err
		}
		f.keys, f.fetchErr = keys, nil
		f.expires = f.now().Add(ttl)
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]*rsa.PublicKey), nil
}

func (f *Firebase) fetchKeys(ctx context.Context) (map[string]*rsa.PublicKey, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.certsURL, nil)
	if err != nil {
		return nil, 0, errors.Wrap(err, 0)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, errors.WrapPrefix(err, "fetching signing certificates", 0)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, errors.Errorf("fetching signing certificates: status %d", resp.StatusCode)
	}

	var certs map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&certs); err != nil {
		return nil, 0, errors.WrapPrefix(err, "decoding signing certificates", 0)
	}

	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, certPEM := range certs {
		k, err := parseCertificateKey(certPEM)
		if err != nil {
			logging.Warnw(ctx, "identity: skipping unparseable certificate", "kid", kid, "error", err)
			continue
		}
		keys[kid] = k
	}
	logging.Debugw(ctx, "identity: refreshed signing certificates", "count", len(keys))
	return keys, maxAge(resp.Header.Get("Cache-Control")), nil
}

func parseCertificateKey(certPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return nil, errors.New("no PEM block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	k, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("certificate key is not RSA")
	}
	return k, nil
}

// maxAge reads the max-age directive from a Cache-Control header.
func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultKeysTTL
}
