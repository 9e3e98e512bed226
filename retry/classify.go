package retry

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
)

// RecoverableError is implemented by errors that know whether the failed
// operation may succeed when tried again.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// markedError overrides the classification of the error it wraps
type markedError struct {
	err         error
	recoverable bool
}

func (e *markedError) Error() string       { return e.err.Error() }
func (e *markedError) Unwrap() error       { return e.err }
func (e *markedError) IsRecoverable() bool { return e.recoverable }

// Recoverable marks err as safe to retry.
func Recoverable(err error) error {
	return &markedError{err: err, recoverable: true}
}

// Permanent marks err as not worth retrying, whatever it wraps.
func Permanent(err error) error {
	return &markedError{err: err}
}

// Messages reported by database drivers and the network for conditions
// that usually clear on their own.
var transientMessages = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"timeout",
	"temporary failure",
	"database is locked",
	"database table is locked",
	"sqlite_busy",
	"too many connections",
	"deadlock",
	"serialization failure",
	"the database system is starting up",
}

// IsRecoverable reports whether the operation that returned err may succeed
// if tried again. Marked errors decide for themselves; otherwise deadlines,
// network timeouts, bad driver connections and known transient database
// messages are recoverable and everything else, cancellation included, is
// not.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var marked RecoverableError
	if errors.As(err, &marked) {
		return marked.IsRecoverable()
	}
	switch {
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, driver.ErrBadConn):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range transientMessages {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
