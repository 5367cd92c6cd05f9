package task

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// State is the lifecycle state of a task.
//
// A task moves Idle -> Running -> {Passed | Failed | Aborted} and may be started again
// from any terminal state.
type State int32

const (
	Idle State = iota
	Running
	Passed
	Failed
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// IsTerminal reports whether s is Passed, Failed or Aborted.
func (s State) IsTerminal() bool {
	return s == Passed || s == Failed || s == Aborted
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{Idle, Running, Passed, Failed, Aborted} {
		if strings.EqualFold(st.String(), string(b)) {
			*s = st
			return nil
		}
	}

	return fmt.Errorf("task: unknown state %q", b)
}

// MarshalYAML implements yaml.Marshaler.
func (s State) MarshalYAML() (any, error) {
	return s.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *State) UnmarshalYAML(node *yaml.Node) error {
	return s.UnmarshalText([]byte(node.Value))
}
