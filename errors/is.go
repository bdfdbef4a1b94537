package errors

import (
	baseErrors "errors"
	"fmt"
)

// Is detects whether the error is equal to a given error. Errors
// are considered equal by this function if they are matched by errors.Is
// or if their contained errors are matched through errors.Is.
func Is(e error, original error) bool {
	if baseErrors.Is(e, original) {
		return true
	}

	if e, ok := e.(*Error); ok {
		return Is(e.Err, original)
	}

	if original, ok := original.(*Error); ok {
		return Is(e, original.Err)
	}

	return false
}

// As finds the first error in err's tree that matches target, and if one is
// found, sets target to that error value and returns true. Delegates to the
// standard library.
func As(err error, target any) bool {
	return baseErrors.As(err, target)
}

// uncaughtPanic marks errors created from recovered panics.
type uncaughtPanic struct {
	message string
}

func (p uncaughtPanic) Error() string {
	return p.message
}

// FromPanic converts a value passed to panic() into an Error with a stack
// starting at the caller of FromPanic, skipping `skip` additional frames.
func FromPanic(r any, skip int) *Error {
	return Wrap(uncaughtPanic{message: fmt.Sprintf("panic: %v", r)}, 1+skip)
}
