package paste

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the Store can report.
type Kind int

const (
	// KindNotFound means the key was never created, already fetched, or expired.
	KindNotFound Kind = iota + 1
	// KindStore means the backing engine rejected or failed the operation.
	KindStore
	// KindConnectionTimeout means no pooled connection became available in time.
	KindConnectionTimeout
	// KindDecode means the stored bytes are not valid UTF-8 text.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindStore:
		return "store_error"
	case KindConnectionTimeout:
		return "connection_timeout"
	case KindDecode:
		return "decode_error"
	default:
		return "unknown"
	}
}

// Error is returned by every failing Store operation.
type Error struct {
	Kind Kind
	// Key is set for KindNotFound.
	Key string
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return "not found: " + e.Key
	case KindStore:
		return fmt.Sprintf("error communicating with store: %v", e.Err)
	case KindConnectionTimeout:
		return "connection timeout"
	case KindDecode:
		return fmt.Sprintf("string decode error: %v", e.Err)
	default:
		return fmt.Sprintf("paste error: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

// IsNotFound reports whether err is a KindNotFound error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
