package lecture

import (
	"errors"
	"fmt"
)

// Kind classifies run failures so callers can branch without parsing messages.
type Kind int

const (
	KindConfig      Kind = iota + 1 // Missing credentials, API keys or recipient source
	KindTransientUI                 // Optional element absent; recovered locally
	KindNavigation                  // Required portal element not found within timeout
	KindExtraction                  // Extraction service failure or unusable response
	KindDelivery                    // Notification not accepted
	KindPersistence                 // State could not be written
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "configuration"
	case KindTransientUI:
		return "transient-ui"
	case KindNavigation:
		return "navigation"
	case KindExtraction:
		return "extraction"
	case KindDelivery:
		return "delivery"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Error is a run failure tagged with its kind and the operation that failed.
type Error struct {
	Err  error
	Op   string
	Kind Kind
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and operation name.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
