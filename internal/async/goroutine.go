package async

import (
	"fmt"
	"runtime/debug"
)

// PanicLogger captures panic reports from worker goroutines.
type PanicLogger interface {
	Error(format string, args ...any)
}

// PanicError is returned by a guarded function that panicked.
type PanicError struct {
	Name  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("panic: %v", e.Value)
	}
	return fmt.Sprintf("panic in %s: %v", e.Name, e.Value)
}

// Guard wraps fn so that a panic is logged and returned as a *PanicError.
// The result fits errgroup.Group.Go.
func Guard(logger PanicLogger, name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				perr := &PanicError{Name: name, Value: r, Stack: debug.Stack()}
				if logger != nil {
					logger.Error("%s, stack: %s", perr.Error(), perr.Stack)
				}
				err = perr
			}
		}()
		return fn()
	}
}
