package command

import (
	"fmt"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-instrument/transport"
)

// Default wire formats. Arguments are referenced by explicit index:
// %[1]s is the command name, %[2]s the formatted value.
const (
	DefaultGetFormat = "%[1]s?"
	DefaultSetFormat = "%[1]s %[2]s"
)

// Target is a node that reaches an instrument through a transport, usually a Component.
type Target interface {
	Transport() transport.Transport
}

// Access tells which directions of a command are enabled.
type Access uint8

const (
	// ReadOnly commands can only be queried.
	ReadOnly Access = 1 << iota
	// WriteOnly commands can only be set.
	WriteOnly
	// ReadWrite commands can be queried and set.
	ReadWrite = ReadOnly | WriteOnly
)

// CanRead reports whether the get direction is enabled.
func (a Access) CanRead() bool { return a&ReadOnly != 0 }

// CanWrite reports whether the set direction is enabled.
func (a Access) CanWrite() bool { return a&WriteOnly != 0 }

func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "query-only"
	case WriteOnly:
		return "set-only"
	case ReadWrite:
		return "read-write"
	default:
		return fmt.Sprintf("Access(%d)", uint8(a))
	}
}

// Descriptor describes a command independently of its value type.
type Descriptor interface {
	Name() string
	Access() Access
	Doc() string
}

// Accessor is the type-erased view of a Command[T], used by registries and bulk capture.
type Accessor interface {
	Descriptor
	ReadAny(target Target) (any, error)
	// WriteAny accepts a value of the command's type, or a string that is parsed with its codec.
	WriteAny(target Target, v any) error
}

// IndexAccessor is the type-erased view of an IndexCommand[T].
type IndexAccessor interface {
	Descriptor
	Indices() []int
	ReadIndexAny(target Target, index int) (any, error)
	WriteIndexAny(target Target, index int, v any) error
}

type settings struct {
	doc       string
	getFormat string
	setFormat string
	def       any
	names     map[string]int
}

// Option configures a command declaration.
type Option func(*settings)

// WithDoc sets the help text shown by introspection.
func WithDoc(doc string) Option {
	return func(s *settings) { s.doc = doc }
}

// WithGetFormat overrides the query format. See DefaultGetFormat and DefaultIndexGetFormat.
func WithGetFormat(format string) Option {
	return func(s *settings) { s.getFormat = format }
}

// WithSetFormat overrides the set format. See DefaultSetFormat and DefaultIndexSetFormat.
func WithSetFormat(format string) Option {
	return func(s *settings) { s.setFormat = format }
}

// WithDefault sets the value returned by Default. Its type must match the command's value type.
func WithDefault[T any](v T) Option {
	return func(s *settings) { s.def = v }
}

// WithIndexNames maps symbolic names to indices of an IndexCommand, e.g. {"ch1": 1}.
func WithIndexNames(names map[string]int) Option {
	return func(s *settings) { s.names = names }
}

func newSettings(getFormat, setFormat string, opts []Option) *settings {
	s := &settings{getFormat: getFormat, setFormat: setFormat}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func defaultOf[T any](name string, s *settings) T {
	var zero T
	if s.def == nil {
		return zero
	}

	v, ok := s.def.(T)
	if !ok {
		panic(fmt.Sprintf("command %q: default %T does not match value type %T", name, s.def, zero))
	}

	return v
}

// Command binds a named remote operation to a typed request/reply exchange.
//
// A Command is declared once per instrument model and used with any number of targets:
// Read and Write take the target whose transport carries the exchange. The last value
// read or written is cached per target. The cache holds a reference to every target used
// until Forget is called for it, which is meant for targets that live as long as their
// instrument model.
type Command[T any] struct {
	name      string
	access    Access
	codec     Codec[T]
	doc       string
	getFormat string
	setFormat string
	def       T
	last      *xsync.MapOf[Target, T]
}

var _ Accessor = (*Command[int])(nil)

// New declares a command with a custom codec.
func New[T any](name string, access Access, codec Codec[T], opts ...Option) *Command[T] {
	s := newSettings(DefaultGetFormat, DefaultSetFormat, opts)

	return &Command[T]{
		name:      name,
		access:    access,
		codec:     codec,
		doc:       s.doc,
		getFormat: s.getFormat,
		setFormat: s.setFormat,
		def:       defaultOf[T](name, s),
		last:      xsync.NewMapOf[Target, T](),
	}
}

// NewString declares a text-valued command.
func NewString(name string, access Access, opts ...Option) *Command[string] {
	return New(name, access, StringCodec(), opts...)
}

// NewBool declares a boolean command.
func NewBool(name string, access Access, opts ...Option) *Command[bool] {
	return New(name, access, BoolCodec(), opts...)
}

// NewInt declares an integer command.
func NewInt(name string, access Access, opts ...Option) *Command[int] {
	return New(name, access, IntCodec(), opts...)
}

// NewFloat declares a float command.
func NewFloat(name string, access Access, opts ...Option) *Command[float64] {
	return New(name, access, FloatCodec(), opts...)
}

// NewDict declares a command whose values are the keys of mapping.
func NewDict(name string, access Access, mapping map[string]string, opts ...Option) *Command[string] {
	return New(name, access, DictCodec(mapping), opts...)
}

// Name returns the remote command name.
func (c *Command[T]) Name() string { return c.name }

// Access returns the enabled directions.
func (c *Command[T]) Access() Access { return c.access }

// Doc returns the help text.
func (c *Command[T]) Doc() string { return c.doc }

// Default returns the declared default value.
func (c *Command[T]) Default() T { return c.def }

// Query returns the text sent by Read.
func (c *Command[T]) Query() string {
	return fmt.Sprintf(c.getFormat, c.name)
}

// Last returns the value last read from or written to target.
func (c *Command[T]) Last(target Target) (T, bool) {
	return c.last.Load(target)
}

// Forget drops the cached value of target.
func (c *Command[T]) Forget(target Target) {
	c.last.Delete(target)
}

// Read queries the value from the instrument behind target.
func (c *Command[T]) Read(target Target) (T, error) {
	var zero T
	if !c.access.CanRead() {
		return zero, fmt.Errorf("%w: %s", ErrNotReadable, c.name)
	}

	query := c.Query()
	tr := target.Transport()
	if tr == nil {
		return zero, &transport.QueryError{Command: query, Err: ErrNoTransport}
	}

	reply, err := tr.QueryText(query)
	if err != nil {
		return zero, &transport.QueryError{Command: query, Err: err}
	}

	v, err := c.codec.Parse(strings.TrimSpace(reply))
	if err != nil {
		return zero, &transport.QueryError{Command: query, Reply: reply, Err: err}
	}
	c.last.Store(target, v)

	return v, nil
}

// Write sets v on the instrument behind target.
func (c *Command[T]) Write(target Target, v T) error {
	if !c.access.CanWrite() {
		return fmt.Errorf("%w: %s", ErrNotWritable, c.name)
	}

	raw, err := c.codec.Format(v)
	if err != nil {
		return &transport.SetError{Command: c.name, Err: err}
	}

	text := fmt.Sprintf(c.setFormat, c.name, raw)
	tr := target.Transport()
	if tr == nil {
		return &transport.SetError{Command: text, Err: ErrNoTransport}
	}

	if err := tr.Send(text); err != nil {
		return &transport.SetError{Command: text, Err: err}
	}
	c.last.Store(target, v)

	return nil
}

// ReadAny implements Accessor.
func (c *Command[T]) ReadAny(target Target) (any, error) {
	return c.Read(target)
}

// WriteAny implements Accessor.
func (c *Command[T]) WriteAny(target Target, v any) error {
	tv, err := coerce(c.name, c.codec, v)
	if err != nil {
		return err
	}

	return c.Write(target, tv)
}

func coerce[T any](name string, codec Codec[T], v any) (T, error) {
	if tv, ok := v.(T); ok {
		return tv, nil
	}

	var zero T
	if s, ok := v.(string); ok {
		tv, err := codec.Parse(strings.TrimSpace(s))
		if err != nil {
			return zero, &transport.SetError{Command: name, Err: fmt.Errorf("%w: %w", ErrValueType, err)}
		}

		return tv, nil
	}

	return zero, &transport.SetError{Command: name, Err: fmt.Errorf("%w: want %T, got %T", ErrValueType, zero, v)}
}
