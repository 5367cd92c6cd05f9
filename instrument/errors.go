package instrument

import (
	"errors"
	"fmt"
)

var (
	// ErrIdentity indicates an identity reply that does not contain the expected ID string.
	ErrIdentity = errors.New("instrument: identity error")

	// ErrNoSuchMember indicates a lookup of an unknown command, method or child.
	ErrNoSuchMember = errors.New("instrument: no such member")
)

// IdentityError reports an identity reply that does not match the instrument.
type IdentityError struct {
	Expected string
	Reply    string
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("identity reply %q does not contain %q", e.Reply, e.Expected)
}

func (e *IdentityError) Unwrap() error { return ErrIdentity }
