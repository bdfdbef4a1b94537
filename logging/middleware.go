package logging

import (
	"context"
	"net/http"
	"reflect"
	"time"

	"github.com/dpup/grantrelay/errors"
	"github.com/google/uuid"
)

const stackSize = 5

// RequestIDHeader is echoed back on every response so that clients can
// correlate failures with server logs.
const RequestIDHeader = "X-Request-Id"

// maxRequestIDLength bounds caller supplied request ids.
const maxRequestIDLength = 64

// validRequestID accepts short tokens of letters, digits, '-', '_' and '.',
// which covers UUIDs.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

// Middleware creates a new logging scope for each request, named after the
// request path, recovers panics and writes a single log line when the request
// completes. Fields added with Track during the request are included.
func Middleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := EnsureLogger(r.Context())
		ctx = With(ctx, FromContext(ctx).Named(r.URL.Path))

		reqID := r.Header.Get(RequestIDHeader)
		if !validRequestID(reqID) {
			reqID = uuid.NewString()
		}
		Track(ctx, "req.id", reqID)
		w.Header().Set(RequestIDHeader, reqID)

		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			if p := recover(); p != nil {
				Track(ctx, "error.panic", true)
				TrackError(ctx, errors.FromPanic(p, 2))
				if !rec.wroteHeader {
					http.Error(rec, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}
			logRequest(ctx, r, rec.statusCode(), time.Since(start))
		}()

		h.ServeHTTP(rec, r.WithContext(ctx))
	})
}

// TrackError adds error fields to the request's logging scope.
func TrackError(ctx context.Context, err error) {
	Track(ctx, "error", err.Error())
	Track(ctx, "error.type", reflect.TypeOf(err).String())
	Track(ctx, "error.code", errors.Code(err).String())
	Track(ctx, "error.http_status", errors.HTTPStatusCode(err))

	// Add a minimalist stack trace to the log.
	var gerr *errors.Error
	if errors.As(err, &gerr) {
		Track(ctx, "error.stack_trace", gerr.MinimalStack(0, stackSize))
		Track(ctx, "error.original_type", gerr.TypeName())
	}
}

func logRequest(ctx context.Context, r *http.Request, status int, d time.Duration) {
	logger := FromContext(ctx)
	if z, ok := logger.(*ZapLogger); ok {
		// zap's own stack trace would point at this middleware, errors carry
		// their own via TrackError.
		logger = z.withoutStacktrace()
	}
	logger = logger.
		With("req.method", r.Method).
		With("http.status", status).
		With("duration", d)

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed")
	case status >= http.StatusBadRequest:
		logger.Warn("request rejected")
	default:
		logger.Info("request completed")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if !s.wroteHeader {
		s.WriteHeader(http.StatusOK)
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) statusCode() int {
	if !s.wroteHeader {
		return http.StatusOK
	}
	return s.status
}
