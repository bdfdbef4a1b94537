package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestCodeAndStatus(t *testing.T) {
	plain := fmt.Errorf("refresh failed")
	cases := []struct {
		desc       string
		err        error
		wantCode   codes.Code
		wantStatus int
	}{
		{"nil", nil, codes.OK, http.StatusOK},
		{"plain error", plain, codes.Unknown, http.StatusInternalServerError},
		{"invalid argument", WithCode(plain, codes.InvalidArgument), codes.InvalidArgument, http.StatusBadRequest},
		{"permission denied", NewC("forged", codes.PermissionDenied), codes.PermissionDenied, http.StatusForbidden},
		{"failed precondition", NewC("no record", codes.FailedPrecondition), codes.FailedPrecondition, http.StatusPreconditionFailed},
		{"unmapped code", NewC("odd", codes.DataLoss), codes.DataLoss, http.StatusInternalServerError},
		{
			"status override",
			NewC("no record", codes.FailedPrecondition).WithHTTPStatusCode(http.StatusBadRequest),
			codes.FailedPrecondition, http.StatusBadRequest,
		},
		{
			"override survives prefix",
			WrapPrefix(NewC("x", codes.Unavailable).WithHTTPStatusCode(http.StatusConflict), "outer", 0),
			codes.Unavailable, http.StatusConflict,
		},
		{"found through fmt wrapping", fmt.Errorf("handler: %w", NewC("x", codes.InvalidArgument)), codes.InvalidArgument, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.wantCode, Code(tc.err))
			assert.Equal(t, tc.wantStatus, HTTPStatusCode(tc.err))
		})
	}
}

func TestWrapPrefix(t *testing.T) {
	base := NewC("connection reset", codes.Unavailable).WithPublicMessage("try later")
	once := WrapPrefix(base, "google", 0)
	twice := WrapPrefix(once, "grant", 0)

	assert.Equal(t, "google: connection reset", once.Error())
	assert.Equal(t, "grant: google: connection reset", twice.Error())
	assert.Equal(t, "connection reset", base.Error(), "wrapping must not change the original")
	assert.Equal(t, codes.Unavailable, twice.Code())
	assert.Equal(t, "try later", twice.PublicMessage())
	assert.Nil(t, WrapPrefix(nil, "x", 0))
}

func TestCodef(t *testing.T) {
	err := Codef(codes.NotFound, "no document %q", "u1")
	assert.Equal(t, `no document "u1"`, err.Error())
	assert.Equal(t, http.StatusNotFound, err.HTTPStatusCode())
}

func TestErrorf_KeepsChain(t *testing.T) {
	sentinel := NewC("missing", codes.NotFound)
	err := Errorf("%w: u1", sentinel)
	assert.True(t, Is(err, sentinel))
	assert.Equal(t, `storage: missing: u1`, WrapPrefix(err, "storage", 0).Error())
}

func TestPublicMessage(t *testing.T) {
	internal := New("dial tcp 10.0.0.1:443: connection refused")
	assert.Equal(t, internal.Error(), internal.PublicMessage(), "method falls back to the internal message")

	cases := []struct {
		desc string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain error is summarized", fmt.Errorf("dial tcp 10.0.0.1:443: connection refused"), "Internal Server Error"},
		{"code without message", Codef(codes.PermissionDenied, "bad signature"), "Forbidden"},
		{"message through wrapping", fmt.Errorf("outer: %w", New("dial tcp").WithPublicMessage("try again")), "try again"},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.want, PublicMessage(tc.err))
		})
	}
}

func TestMark_CopiesSentinel(t *testing.T) {
	sentinel := NewC("no credential", codes.FailedPrecondition).WithPublicMessage("no grant on file")
	marked := Mark(sentinel, 0)

	require.True(t, Is(marked, sentinel))
	assert.Equal(t, codes.FailedPrecondition, Code(marked))
	assert.Equal(t, "no grant on file", marked.PublicMessage())

	marked.WithHTTPStatusCode(http.StatusBadRequest).WithPublicMessage("changed")
	assert.Equal(t, http.StatusPreconditionFailed, sentinel.HTTPStatusCode())
	assert.Equal(t, "no grant on file", sentinel.PublicMessage())
}

func TestMaybeWrap(t *testing.T) {
	assert.Nil(t, MaybeWrap(nil, 0))

	err := MaybeWrap(fmt.Errorf("boom"), 0)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, codes.Unknown, e.Code())
}

func TestMinimalStack(t *testing.T) {
	err := New("test error")
	stack := err.MinimalStack(0, 2)
	require.NotEmpty(t, stack)
	assert.LessOrEqual(t, len(stack), 2)
	assert.Contains(t, stack[0], "errors_test.go")
	assert.Nil(t, err.MinimalStack(1000, 2))
}

func TestFromPanic(t *testing.T) {
	err := FromPanic("kaboom", 0)
	assert.Equal(t, "panic", err.TypeName())
	assert.Equal(t, "panic: kaboom", err.Error())
	assert.Contains(t, err.ErrorStack(), "errors_test.go")
}
