package instrument

import (
	"fmt"
	"slices"

	"github.com/arloliu/go-instrument/command"
)

// Method describes a callable operation of a component class.
type Method struct {
	Name string
	Doc  string
	// Call runs the operation on c. Methods without Call are listed for introspection only.
	Call func(c *Component, args ...string) (string, error)
}

// Class is the registry of one component type: its commands, methods and the
// names excluded from bulk capture. A class may extend a base class, inheriting
// its members; a member declared again overrides the inherited one.
//
// Classes are declared once, typically in package-level variables, and shared by
// every component of that type.
type Class struct {
	name     string
	base     *Class
	commands []command.Descriptor
	methods  []Method
	excluded map[string]struct{}
}

// NewClass creates a class. base may be nil.
func NewClass(name string, base *Class) *Class {
	return &Class{name: name, base: base, excluded: make(map[string]struct{})}
}

// Name returns the class name.
func (c *Class) Name() string { return c.name }

// Base returns the base class or nil.
func (c *Class) Base() *Class { return c.base }

// AddCommands registers commands. Each must be a command.Accessor or command.IndexAccessor.
func (c *Class) AddCommands(cmds ...command.Descriptor) *Class {
	for _, cmd := range cmds {
		switch cmd.(type) {
		case command.Accessor, command.IndexAccessor:
		default:
			panic(fmt.Sprintf("class %q: %T is neither a command nor an indexed command", c.name, cmd))
		}
		c.commands = upsert(c.commands, cmd, func(d command.Descriptor) string { return d.Name() })
	}

	return c
}

// AddMethods registers callable operations.
func (c *Class) AddMethods(methods ...Method) *Class {
	for _, m := range methods {
		c.methods = upsert(c.methods, m, func(m Method) string { return m.Name })
	}

	return c
}

// Exclude marks commands or methods that must not be captured, e.g. reads with side effects.
func (c *Class) Exclude(names ...string) *Class {
	for _, n := range names {
		c.excluded[n] = struct{}{}
	}

	return c
}

// IsExcluded reports whether name is excluded by this class or a base class.
func (c *Class) IsExcluded(name string) bool {
	for cls := c; cls != nil; cls = cls.base {
		if _, ok := cls.excluded[name]; ok {
			return true
		}
	}

	return false
}

// Commands returns the commands of the class in declaration order, base class members first
// when inherited is true.
func (c *Class) Commands(inherited bool) []command.Descriptor {
	if !inherited || c.base == nil {
		return slices.Clone(c.commands)
	}

	out := c.base.Commands(true)
	for _, cmd := range c.commands {
		out = upsert(out, cmd, func(d command.Descriptor) string { return d.Name() })
	}

	return out
}

// Methods returns the methods of the class, base class members first when inherited is true.
func (c *Class) Methods(inherited bool) []Method {
	if !inherited || c.base == nil {
		return slices.Clone(c.methods)
	}

	out := c.base.Methods(true)
	for _, m := range c.methods {
		out = upsert(out, m, func(m Method) string { return m.Name })
	}

	return out
}

// Command looks up a command by name, including inherited ones.
func (c *Class) Command(name string) (command.Descriptor, bool) {
	for cls := c; cls != nil; cls = cls.base {
		for _, cmd := range cls.commands {
			if cmd.Name() == name {
				return cmd, true
			}
		}
	}

	return nil, false
}

// Method looks up a method by name, including inherited ones.
func (c *Class) Method(name string) (Method, bool) {
	for cls := c; cls != nil; cls = cls.base {
		for _, m := range cls.methods {
			if m.Name == name {
				return m, true
			}
		}
	}

	return Method{}, false
}

func upsert[E any](list []E, e E, key func(E) string) []E {
	idx := slices.IndexFunc(list, func(x E) bool { return key(x) == key(e) })
	if idx >= 0 {
		list[idx] = e
		return list
	}

	return append(list, e)
}
