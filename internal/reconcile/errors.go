package reconcile

import (
	"errors"
	"fmt"
)

// Kind classifies why a message was dropped.
type Kind string

const (
	// KindUnmatched means the message references no tracked bank, invoice or VA.
	KindUnmatched Kind = "unmatched"
	// KindPolicy means applying the message would violate a ledger rule.
	KindPolicy Kind = "policy"
	// KindMalformed means the message failed validation before any lookup.
	KindMalformed Kind = "malformed"
)

// Rejection is a terminal outcome for a message. The unit of work is rolled
// back and the message must not be retried.
type Rejection struct {
	Kind   Kind
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Kind, r.Reason)
}

func reject(kind Kind, format string, args ...any) error {
	return &Rejection{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// IsRejection reports whether err carries a Rejection and returns it.
func IsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
