package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with structured logging.
// It must be called directly in a defer statement:
//
//	defer observability.RecoverPanic(logger, "event handler")
//
// The panic is not re-raised.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithField("panic", fmt.Sprint(r)).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
	}
}

// MustRecover converts a recovered value into an error, or nil if r is nil:
//
//	defer func() {
//	    if rerr := observability.MustRecover(recover()); rerr != nil {
//	        err = rerr
//	    }
//	}()
func MustRecover(r interface{}) error {
	if r != nil {
		return fmt.Errorf("panic: %v", r)
	}
	return nil
}
