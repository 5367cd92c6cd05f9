package command

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReadable indicates a read of a set-only command. No wire traffic takes place.
	ErrNotReadable = errors.New("command: no such operation: get is disabled")

	// ErrNotWritable indicates a write of a query-only command. No wire traffic takes place.
	ErrNotWritable = errors.New("command: no such operation: set is disabled")

	// ErrIndex indicates an index out of range or an unresolvable symbolic index.
	ErrIndex = errors.New("command: index error")

	// ErrNoTransport indicates a target that has no transport attached.
	ErrNoTransport = errors.New("command: target has no transport")

	// ErrUnknownKey indicates a dict value whose key is not in the mapping.
	ErrUnknownKey = errors.New("command: unknown key")

	// ErrUnmappedValue indicates a dict reply whose raw value has no key in the mapping.
	ErrUnmappedValue = errors.New("command: reply has no mapped key")

	// ErrValueType indicates a type-erased write with a value of the wrong type.
	ErrValueType = errors.New("command: wrong value type")
)

// IndexError reports an index that is out of range or cannot be resolved.
// It is returned before any wire traffic occurs.
type IndexError struct {
	Command string
	// Value is the offending index as given by the caller.
	Value string
	Min   int
	Max   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("command %q: index %s not in valid range [%d, %d]", e.Command, e.Value, e.Min, e.Max)
}

func (e *IndexError) Unwrap() error { return ErrIndex }
