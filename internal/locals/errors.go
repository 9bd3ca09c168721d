package locals

import (
	"errors"
	"fmt"
)

// ErrUnsupported is wrapped by every error describing a stack shape the pass
// does not recover, such as an object indexed by a variable offset.
var ErrUnsupported = errors.New("unsupported stack object")

// InvariantError reports a broken internal invariant: a bug in the pass, not
// a property of the input.
type InvariantError struct {
	What string
}

func (e *InvariantError) Error() string {
	return "locals: invariant violated: " + e.What
}

func unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, fmt.Sprintf(format, args...))
}

func invariant(cond bool, format string, args ...any) {
	if !cond {
		panic(&InvariantError{What: fmt.Sprintf(format, args...)})
	}
}
