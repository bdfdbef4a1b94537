package grantrelay

import (
	"fmt"
	"net/http"
	"net/textproto"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dpup/grantrelay/errors"
	"github.com/dpup/grantrelay/logging"
	"google.golang.org/grpc/codes"
)

// XFramesOptions is a value for the X-Frame-Options header.
type XFramesOptions string

const (
	XFramesOptionsNone       XFramesOptions = ""
	XFramesOptionsDeny       XFramesOptions = "DENY"
	XFramesOptionsSameOrigin XFramesOptions = "SAMEORIGIN"
)

// AnyOrigin in CORSOrigins allows every origin.
const AnyOrigin = "*"

// hstsPreloadMinimum is the shortest max-age preload lists accept.
const hstsPreloadMinimum = 365 * 24 * time.Hour

var (
	ErrBadHSTSExpiration   = errors.NewC("grantrelay: HSTS preload needs an expiration of at least a year", codes.FailedPrecondition)
	ErrWildcardCredentials = errors.NewC("grantrelay: credentialed CORS requests can't use a wildcard origin", codes.FailedPrecondition)
)

// SecurityHeaders describes the hardening and CORS headers added to every
// response. Fields are read the first time headers are applied, changes after
// that are ignored.
type SecurityHeaders struct {
	XFramesOptions XFramesOptions

	HSTSExpiration        time.Duration
	HSTSIncludeSubdomains bool
	HSTSPreload           bool

	// With AnyOrigin in the list `Access-Control-Allow-Origin: *` is sent on
	// every response, whatever its status.
	CORSOrigins          []string
	CORSAllowMethods     []string
	CORSAllowHeaders     []string
	CORSExposeHeaders    []string
	CORSAllowCredentials bool
	CORSMaxAge           time.Duration

	once     sync.Once
	compiled *headerPlan
	err      error
}

// headerPlan is the precomputed form of a SecurityHeaders.
type headerPlan struct {
	always    http.Header
	preflight http.Header
	exposed   string
	cors      bool
	anyOrigin bool
	origins   map[string]bool
}

// SecurityHeadersFromConfig reads the `server.security.*` keys.
func SecurityHeadersFromConfig() *SecurityHeaders {
	return &SecurityHeaders{
		XFramesOptions:        XFramesOptions(Config.String("server.security.xFramesOptions")),
		HSTSExpiration:        Config.Duration("server.security.hstsExpiration"),
		HSTSIncludeSubdomains: Config.Bool("server.security.hstsIncludeSubdomains"),
		HSTSPreload:           Config.Bool("server.security.hstsPreload"),
		CORSOrigins:           Config.Strings("server.security.corsOrigins"),
		CORSAllowMethods:      Config.Strings("server.security.corsAllowMethods"),
		CORSAllowHeaders:      Config.Strings("server.security.corsAllowHeaders"),
		CORSMaxAge:            Config.Duration("server.security.corsMaxAge"),
	}
}

// Apply sets the headers on w. CORS headers depend on r's Origin, r may be nil
// when no CORS origins are configured.
func (s *SecurityHeaders) Apply(w http.ResponseWriter, r *http.Request) error {
	s.once.Do(func() { s.compiled, s.err = s.plan() })
	if s.err != nil {
		return s.err
	}
	p := s.compiled
	out := w.Header()
	copyHeaders(out, p.always)
	if !p.cors {
		return nil
	}

	if p.anyOrigin {
		out.Set("Access-Control-Allow-Origin", AnyOrigin)
	} else if origin := r.Header.Get("Origin"); p.origins[origin] {
		out.Set("Access-Control-Allow-Origin", origin)
	} else {
		return nil
	}

	switch {
	case r.Method == http.MethodOptions:
		copyHeaders(out, p.preflight)
	case p.exposed != "":
		out.Set("Access-Control-Expose-Headers", p.exposed)
	}
	return nil
}

func (s *SecurityHeaders) plan() (*headerPlan, error) {
	p := &headerPlan{always: http.Header{}, preflight: http.Header{}}
	p.always.Set("X-Content-Type-Options", "nosniff")
	p.always.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	if s.XFramesOptions != XFramesOptionsNone {
		p.always.Set("X-Frame-Options", string(s.XFramesOptions))
	}

	if s.HSTSExpiration > 0 {
		if s.HSTSPreload && s.HSTSExpiration < hstsPreloadMinimum {
			return nil, errors.Mark(ErrBadHSTSExpiration, 0)
		}
		parts := []string{fmt.Sprintf("max-age=%d", int64(s.HSTSExpiration.Seconds()))}
		if s.HSTSIncludeSubdomains {
			parts = append(parts, "includeSubDomains")
		}
		if s.HSTSPreload {
			parts = append(parts, "preload")
		}
		p.always.Set("Strict-Transport-Security", strings.Join(parts, "; "))
	}

	if len(s.CORSOrigins) == 0 {
		return p, nil
	}
	p.cors = true
	p.anyOrigin = slices.Contains(s.CORSOrigins, AnyOrigin)
	if p.anyOrigin && s.CORSAllowCredentials {
		return nil, errors.Mark(ErrWildcardCredentials, 0)
	}
	if !p.anyOrigin {
		p.always.Set("Vary", "Origin")
		p.origins = make(map[string]bool, len(s.CORSOrigins))
		for _, o := range s.CORSOrigins {
			p.origins[o] = true
		}
	}

	methods := s.CORSAllowMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost}
	}
	p.preflight.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
	if len(s.CORSAllowHeaders) > 0 {
		p.preflight.Set("Access-Control-Allow-Headers", canonicalList(s.CORSAllowHeaders))
	}
	if s.CORSAllowCredentials {
		p.preflight.Set("Access-Control-Allow-Credentials", "true")
	}
	if s.CORSMaxAge > 0 {
		p.preflight.Set("Access-Control-Max-Age", fmt.Sprintf("%d", int64(s.CORSMaxAge.Seconds())))
	}
	if len(s.CORSExposeHeaders) > 0 {
		p.exposed = canonicalList(s.CORSExposeHeaders)
	}
	return p, nil
}

func canonicalList(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = textproto.CanonicalMIMEHeaderKey(n)
	}
	return strings.Join(out, ", ")
}

func copyHeaders(dst, src http.Header) {
	for k, v := range src {
		dst[k] = slices.Clone(v)
	}
}

// securityMiddleware applies the headers before h runs, so error responses
// written by h or the mux carry them too. CORS preflights stop here with 204.
func securityMiddleware(h http.Handler, sh *SecurityHeaders) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := sh.Apply(w, r); err != nil {
			logging.Errorw(r.Context(), "grantrelay: security headers misconfigured", "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
