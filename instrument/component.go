package instrument

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/arloliu/go-instrument/command"
	"github.com/arloliu/go-instrument/transport"
)

// Capture flag suffixes appended to names when CaptureCommands is called with flags.
const (
	FlagQueryOnly = " [query-only]"
	FlagSetOnly   = " [set-only]"
	FlagExcluded  = " [excluded]"
	FlagMethod    = " [method]"
)

// Component is a node in an instrument's sub-assembly tree.
//
// Every node shares the transport of the root Instrument. Replacing the transport
// on a node replaces it on all of its descendants.
type Component struct {
	name   string
	class  *Class
	parent *Component

	mu       sync.RWMutex
	children []*Component
	tr       transport.Transport
}

var _ command.Target = (*Component)(nil)

// NewComponent creates a component of class and appends it to the children of parent.
// The new component starts with the parent's transport. parent may be nil for a root.
func NewComponent(name string, class *Class, parent *Component) *Component {
	if class == nil {
		class = NewClass(name, nil)
	}

	c := &Component{name: name, class: class, parent: parent}
	if parent != nil {
		parent.mu.Lock()
		parent.children = append(parent.children, c)
		c.tr = parent.tr
		parent.mu.Unlock()
	}

	return c
}

// Name returns the component name.
func (c *Component) Name() string { return c.name }

// Class returns the component class.
func (c *Component) Class() *Class { return c.class }

// Parent returns the parent component, or nil for the root.
func (c *Component) Parent() *Component { return c.parent }

// Children returns the child components in creation order.
func (c *Component) Children() []*Component {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.children)
}

// Child returns the direct child called name.
func (c *Component) Child(name string) (*Component, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, ch := range c.children {
		if ch.name == name {
			return ch, true
		}
	}

	return nil, false
}

// Path returns the dotted path from the root, e.g. "psu.ch1".
func (c *Component) Path() string {
	parts := []string{}
	for n := c; n != nil; n = n.parent {
		parts = append(parts, n.name)
	}
	slices.Reverse(parts)

	return strings.Join(parts, ".")
}

// Find returns the descendant at a dotted path relative to c, e.g. "ch1.sense".
func (c *Component) Find(path string) (*Component, error) {
	node := c
	for _, name := range strings.Split(path, ".") {
		child, ok := node.Child(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no child %q", ErrNoSuchMember, node.Path(), name)
		}
		node = child
	}

	return node, nil
}

// Transport returns the shared transport, or nil when none is attached.
func (c *Component) Transport() transport.Transport {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.tr
}

// SetTransport replaces the transport of c and of every descendant.
func (c *Component) SetTransport(tr transport.Transport) {
	c.mu.Lock()
	c.tr = tr
	children := slices.Clone(c.children)
	c.mu.Unlock()

	for _, ch := range children {
		ch.SetTransport(tr)
	}
}

// Commands returns the commands of the component class, optionally with inherited ones.
func (c *Component) Commands(inherited bool) []command.Descriptor {
	return c.class.Commands(inherited)
}

// Methods returns the methods of the component class, optionally with inherited ones.
func (c *Component) Methods(inherited bool) []Method {
	return c.class.Methods(inherited)
}

// Call invokes the method called name.
func (c *Component) Call(name string, args ...string) (string, error) {
	m, ok := c.class.Method(name)
	if !ok || m.Call == nil {
		return "", fmt.Errorf("%w: %s has no callable method %q", ErrNoSuchMember, c.Path(), name)
	}

	return m.Call(c, args...)
}

// CaptureCommands reads every readable, non-excluded command of c and its descendants
// and returns a nested name to value map. Indexed commands produce a map keyed by the
// decimal index. Children appear as nested maps under their names.
//
// With flags, set-only commands, excluded commands and methods are listed as well,
// with a nil value and their name suffixed by FlagSetOnly, FlagExcluded or FlagMethod;
// query-only commands are suffixed by FlagQueryOnly.
//
// A failing read does not stop the walk: the value is left out and the error is
// returned joined with the others next to the partial snapshot.
func (c *Component) CaptureCommands(flags bool) (map[string]any, error) {
	out := make(map[string]any)
	var errs []error

	for _, cmd := range c.Commands(true) {
		name := cmd.Name()
		access := cmd.Access()

		switch {
		case c.class.IsExcluded(name):
			if flags {
				out[name+FlagExcluded] = nil
			}
			continue
		case !access.CanRead():
			if flags {
				out[name+FlagSetOnly] = nil
			}
			continue
		}

		key := name
		if flags && !access.CanWrite() {
			key += FlagQueryOnly
		}

		switch acc := cmd.(type) {
		case command.IndexAccessor:
			values := make(map[string]any)
			for _, idx := range acc.Indices() {
				v, err := acc.ReadIndexAny(c, idx)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s.%s[%d]: %w", c.Path(), name, idx, err))
					continue
				}
				values[strconv.Itoa(idx)] = v
			}
			out[key] = values
		case command.Accessor:
			v, err := acc.ReadAny(c)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s.%s: %w", c.Path(), name, err))
				continue
			}
			out[key] = v
		}
	}

	if flags {
		for _, m := range c.Methods(true) {
			if c.class.IsExcluded(m.Name) {
				out[m.Name+FlagExcluded] = nil
				continue
			}
			out[m.Name+FlagMethod] = nil
		}
	}

	for _, ch := range c.Children() {
		sub, err := ch.CaptureCommands(flags)
		if err != nil {
			errs = append(errs, err)
		}
		out[ch.name] = sub
	}

	return out, errors.Join(errs...)
}
