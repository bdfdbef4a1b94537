// Package errors provides the error type used across grantrelay. It is a fork
// of `github.com/go-errors/errors` which attaches a stack-trace, a gRPC status
// code, an optional HTTP status override and a public message to an error.
//
// The code and public message decide what a caller of an HTTP endpoint sees.
// Everything else, the wrapped error and the stack, is only ever logged.
//
// For example:
//
//	var ErrNoCredential = errors.NewC("no credential", codes.FailedPrecondition).
//		WithPublicMessage("No credentials saved for this user.")
//
//	func load(id string) error {
//	    if missing {
//	        return errors.Mark(ErrNoCredential, 0)
//	    }
//	}
//
// Sentinels created with NewC should be returned via Mark, so that the stack
// points at the caller instead of the package initializer.
package errors

import (
	"bytes"
	"fmt"
	"net/http"
	"reflect"
	"runtime"

	"google.golang.org/grpc/codes"
)

// MaxStackDepth bounds the number of frames captured per error.
var MaxStackDepth = 50

// Error wraps an error with the stack where it was created and the details
// used to answer an HTTP request with it.
type Error struct {
	Err    error
	stack  []uintptr
	frames []StackFrame
	prefix string

	// Classifies the error, and picks the HTTP status unless overridden.
	code codes.Code

	// Overrides the status derived from code when non-zero.
	httpStatusCode int

	// Message safe to show callers.
	publicMessage string
}

// callers captures the stack above its caller, skipping skip more frames.
func callers(skip int) []uintptr {
	stack := make([]uintptr, MaxStackDepth)
	n := runtime.Callers(3+skip, stack)
	return stack[:n]
}

func asError(e interface{}) error {
	if err, ok := e.(error); ok {
		return err
	}
	return fmt.Errorf("%v", e)
}

// New returns an Error with codes.Unknown. Non-error values are formatted
// with %v.
func New(e interface{}) *Error {
	return &Error{Err: asError(e), stack: callers(0), code: codes.Unknown}
}

// NewC returns an Error with the given code. Package level sentinels are
// usually created with NewC and returned with Mark.
func NewC(e interface{}, code codes.Code) *Error {
	return &Error{Err: asError(e), stack: callers(0), code: code}
}

// Codef formats a message into an Error with the given code.
func Codef(code codes.Code, format string, a ...interface{}) *Error {
	return &Error{Err: fmt.Errorf(format, a...), stack: callers(0), code: code}
}

// Errorf is fmt.Errorf returning an *Error. %w verbs are preserved, so the
// result matches wrapped errors with Is and As.
func Errorf(format string, a ...interface{}) *Error {
	return Wrap(fmt.Errorf(format, a...), 1)
}

// Wrap returns e unchanged if it is already an *Error, otherwise wraps it
// with a stack starting skip frames above the caller.
func Wrap(e interface{}, skip int) *Error {
	if e == nil {
		return nil
	}
	if err, ok := e.(*Error); ok {
		return err
	}
	return &Error{Err: asError(e), stack: callers(skip), code: codes.Unknown}
}

// MaybeWrap is Wrap for return statements: a nil e stays an untyped nil.
func MaybeWrap(e error, skip int) error {
	if e == nil {
		return nil
	}
	return Wrap(e, 1+skip)
}

// WrapPrefix is Wrap with a message prefix, "prefix: original". Prefixes
// stack when an *Error is wrapped again. Code, status and public message are
// kept.
func WrapPrefix(e interface{}, prefix string, skip int) *Error {
	if e == nil {
		return nil
	}
	err := Wrap(e, 1+skip)
	if err.prefix != "" {
		prefix = prefix + ": " + err.prefix
	}
	c := *err
	c.prefix = prefix
	c.frames = nil
	return &c
}

// Mark returns a copy of e with the stack reset to the caller. Marking a
// sentinel leaves it untouched, and the copy still satisfies Is(copy, e).
func Mark(e interface{}, skip int) *Error {
	if e == nil {
		return nil
	}
	if err, ok := e.(*Error); ok {
		return &Error{
			Err:            err,
			stack:          callers(skip),
			code:           err.code,
			httpStatusCode: err.httpStatusCode,
			publicMessage:  err.publicMessage,
		}
	}
	return Wrap(e, 1+skip)
}

// WithCode wraps err if needed and sets its code.
func WithCode(err error, code codes.Code) *Error {
	if err == nil {
		return nil
	}
	return Wrap(err, 1).WithCode(code)
}

// Error returns the internal message, including any prefix.
func (err *Error) Error() string {
	if err.prefix == "" {
		return err.Err.Error()
	}
	return err.prefix + ": " + err.Err.Error()
}

// Stack formats the captured stack like runtime/debug.Stack.
func (err *Error) Stack() []byte {
	var buf bytes.Buffer
	for _, frame := range err.StackFrames() {
		buf.WriteString(frame.String())
	}
	return buf.Bytes()
}

// MinimalStack returns up to size `file:line` entries after skipping skip
// frames, compact enough for a log field.
func (err *Error) MinimalStack(skip, size int) []string {
	frames := err.StackFrames()
	if skip >= len(frames) {
		return nil
	}
	frames = frames[skip:min(len(frames), skip+size)]
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = fmt.Sprintf("%s:%d", f.File, f.LineNumber)
	}
	return out
}

// Callers returns the raw program counters of the stack.
func (err *Error) Callers() []uintptr {
	return err.stack
}

// ErrorStack returns the type, message and formatted stack.
func (err *Error) ErrorStack() string {
	return err.TypeName() + " " + err.Error() + "\n" + string(err.Stack())
}

// StackFrames resolves the stack, caching the result.
func (err *Error) StackFrames() []StackFrame {
	if err.frames == nil {
		err.frames = make([]StackFrame, len(err.stack))
		for i, pc := range err.stack {
			err.frames[i] = NewStackFrame(pc)
		}
	}
	return err.frames
}

// TypeName returns the type of the wrapped error, or "panic" for recovered
// panics.
func (err *Error) TypeName() string {
	if _, ok := err.Err.(uncaughtPanic); ok {
		return "panic"
	}
	return reflect.TypeOf(err.Err).String()
}

// Unwrap returns the wrapped error.
func (err *Error) Unwrap() error {
	return err.Err
}

// Code returns the error's gRPC code.
func (err *Error) Code() codes.Code {
	return err.code
}

// WithCode sets the code in place and returns err.
func (err *Error) WithCode(code codes.Code) *Error {
	err.code = code
	return err
}

// httpStatusByCode maps codes to HTTP statuses. Codes not listed are 500.
var httpStatusByCode = map[codes.Code]int{
	codes.OK:                 http.StatusOK,
	codes.InvalidArgument:    http.StatusBadRequest,
	codes.OutOfRange:         http.StatusBadRequest,
	codes.DeadlineExceeded:   http.StatusGatewayTimeout,
	codes.NotFound:           http.StatusNotFound,
	codes.AlreadyExists:      http.StatusConflict,
	codes.PermissionDenied:   http.StatusForbidden,
	codes.Unauthenticated:    http.StatusUnauthorized,
	codes.ResourceExhausted:  http.StatusTooManyRequests,
	codes.FailedPrecondition: http.StatusPreconditionFailed,
	codes.Unimplemented:      http.StatusNotImplemented,
	codes.Unavailable:        http.StatusServiceUnavailable,
}

// HTTPStatusCode returns the override if set, otherwise the status mapped
// from the code.
func (err *Error) HTTPStatusCode() int {
	if err.httpStatusCode != 0 {
		return err.httpStatusCode
	}
	if status, ok := httpStatusByCode[err.code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WithHTTPStatusCode sets the status override in place and returns err.
func (err *Error) WithHTTPStatusCode(code int) *Error {
	err.httpStatusCode = code
	return err
}

// PublicMessage returns the public message, or the internal one if none was
// set. Use the package level PublicMessage when answering requests.
func (err *Error) PublicMessage() string {
	if err.publicMessage != "" {
		return err.publicMessage
	}
	return err.Error()
}

// WithPublicMessage sets the public message in place and returns err.
func (err *Error) WithPublicMessage(publicMessage string) *Error {
	err.publicMessage = publicMessage
	return err
}

// Code returns the code of the first error in err's chain that has one.
// nil is codes.OK, anything else codes.Unknown.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var e codedError
	if As(err, &e) {
		return e.Code()
	}
	return codes.Unknown
}

// HTTPStatusCode returns the HTTP status of the first error in err's chain
// that has one. nil is 200, anything else 500.
func HTTPStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var e httpError
	if As(err, &e) {
		return e.HTTPStatusCode()
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message that is safe to show a client. Errors
// that don't carry a public message are summarized by their HTTP status text,
// so that internals never leak.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if As(err, &e) && e.publicMessage != "" {
		return e.publicMessage
	}
	return http.StatusText(HTTPStatusCode(err))
}

type codedError interface {
	Code() codes.Code
}

type httpError interface {
	HTTPStatusCode() int
}
