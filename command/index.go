package command

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-instrument/transport"
)

// Default indexed wire formats: %[1]s is the command name, %[2]d the index and
// %[3]s the formatted value.
const (
	DefaultIndexGetFormat = "%[1]s? %[2]d"
	DefaultIndexSetFormat = "%[1]s %[2]d,%[3]s"
)

type indexKey struct {
	target Target
	index  int
}

// IndexCommand is a Command that takes an integer index per access, e.g. a channel number.
//
// Indices are validated against [Min, Max] after symbolic-name resolution. An invalid
// index fails with *IndexError before any wire traffic. Like Command, it caches the last
// value per target and index until Forget is called for the target.
type IndexCommand[T any] struct {
	name      string
	access    Access
	codec     Codec[T]
	doc       string
	getFormat string
	setFormat string
	def       T
	min, max  int
	names     map[string]int
	last      *xsync.MapOf[indexKey, T]
}

var _ IndexAccessor = (*IndexCommand[int])(nil)

// NewIndex declares an indexed command valid for indices in [minIndex, maxIndex].
func NewIndex[T any](name string, access Access, codec Codec[T], minIndex, maxIndex int, opts ...Option) *IndexCommand[T] {
	if minIndex > maxIndex {
		panic(fmt.Sprintf("command %q: index range [%d, %d] is empty", name, minIndex, maxIndex))
	}

	s := newSettings(DefaultIndexGetFormat, DefaultIndexSetFormat, opts)

	return &IndexCommand[T]{
		name:      name,
		access:    access,
		codec:     codec,
		doc:       s.doc,
		getFormat: s.getFormat,
		setFormat: s.setFormat,
		def:       defaultOf[T](name, s),
		min:       minIndex,
		max:       maxIndex,
		names:     maps.Clone(s.names),
		last:      xsync.NewMapOf[indexKey, T](),
	}
}

// NewIndexString declares an indexed text command.
func NewIndexString(name string, access Access, minIndex, maxIndex int, opts ...Option) *IndexCommand[string] {
	return NewIndex(name, access, StringCodec(), minIndex, maxIndex, opts...)
}

// NewIndexBool declares an indexed boolean command.
func NewIndexBool(name string, access Access, minIndex, maxIndex int, opts ...Option) *IndexCommand[bool] {
	return NewIndex(name, access, BoolCodec(), minIndex, maxIndex, opts...)
}

// NewIndexInt declares an indexed integer command.
func NewIndexInt(name string, access Access, minIndex, maxIndex int, opts ...Option) *IndexCommand[int] {
	return NewIndex(name, access, IntCodec(), minIndex, maxIndex, opts...)
}

// NewIndexFloat declares an indexed float command.
func NewIndexFloat(name string, access Access, minIndex, maxIndex int, opts ...Option) *IndexCommand[float64] {
	return NewIndex(name, access, FloatCodec(), minIndex, maxIndex, opts...)
}

// NewIndexDict declares an indexed command whose values are the keys of mapping.
func NewIndexDict(name string, access Access, minIndex, maxIndex int, mapping map[string]string, opts ...Option) *IndexCommand[string] {
	return NewIndex(name, access, DictCodec(mapping), minIndex, maxIndex, opts...)
}

// Name returns the command name sent on the wire.
func (c *IndexCommand[T]) Name() string { return c.name }

// Access returns the enabled directions.
func (c *IndexCommand[T]) Access() Access { return c.access }

// Doc returns the command description.
func (c *IndexCommand[T]) Doc() string { return c.doc }

// Default returns the value used before anything was read or written.
func (c *IndexCommand[T]) Default() T { return c.def }

// Range returns the valid index range.
func (c *IndexCommand[T]) Range() (minIndex, maxIndex int) { return c.min, c.max }

// Indices returns every valid index in ascending order.
func (c *IndexCommand[T]) Indices() []int {
	out := make([]int, 0, c.max-c.min+1)
	for i := c.min; i <= c.max; i++ {
		out = append(out, i)
	}

	return out
}

// Names returns the symbolic index names, sorted.
func (c *IndexCommand[T]) Names() []string {
	return slices.Sorted(maps.Keys(c.names))
}

// Resolve converts a symbolic name or a decimal token into a validated index.
func (c *IndexCommand[T]) Resolve(key string) (int, error) {
	key = strings.TrimSpace(key)
	if idx, ok := c.names[key]; ok {
		return c.check(idx, key)
	}
	for name, idx := range c.names {
		if strings.EqualFold(name, key) {
			return c.check(idx, key)
		}
	}

	idx, err := strconv.Atoi(key)
	if err != nil {
		return 0, c.indexError(key)
	}

	return c.check(idx, key)
}

func (c *IndexCommand[T]) check(idx int, given string) (int, error) {
	if idx < c.min || idx > c.max {
		return 0, c.indexError(given)
	}

	return idx, nil
}

func (c *IndexCommand[T]) indexError(given string) error {
	return &IndexError{Command: c.name, Value: given, Min: c.min, Max: c.max}
}

// Query returns the text sent by Read for index.
func (c *IndexCommand[T]) Query(index int) string {
	return fmt.Sprintf(c.getFormat, c.name, index)
}

// Forget drops the cached values of every index of target.
func (c *IndexCommand[T]) Forget(target Target) {
	c.last.Range(func(k indexKey, _ T) bool {
		if k.target == target {
			c.last.Delete(k)
		}
		return true
	})
}

// Last returns the value last read from or written to index on target.
func (c *IndexCommand[T]) Last(target Target, index int) (T, bool) {
	return c.last.Load(indexKey{target, index})
}

// Read queries the value at index.
func (c *IndexCommand[T]) Read(target Target, index int) (T, error) {
	var zero T
	if !c.access.CanRead() {
		return zero, fmt.Errorf("%w: %s", ErrNotReadable, c.name)
	}
	if _, err := c.check(index, strconv.Itoa(index)); err != nil {
		return zero, err
	}

	query := c.Query(index)
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
	c.last.Store(indexKey{target, index}, v)

	return v, nil
}

// ReadKey reads the value at a symbolic or decimal index.
func (c *IndexCommand[T]) ReadKey(target Target, key string) (T, error) {
	idx, err := c.Resolve(key)
	if err != nil {
		var zero T
		return zero, err
	}

	return c.Read(target, idx)
}

// Write sets v at index.
func (c *IndexCommand[T]) Write(target Target, index int, v T) error {
	if !c.access.CanWrite() {
		return fmt.Errorf("%w: %s", ErrNotWritable, c.name)
	}
	if _, err := c.check(index, strconv.Itoa(index)); err != nil {
		return err
	}

	raw, err := c.codec.Format(v)
	if err != nil {
		return &transport.SetError{Command: c.name, Err: err}
	}

	text := fmt.Sprintf(c.setFormat, c.name, index, raw)
	tr := target.Transport()
	if tr == nil {
		return &transport.SetError{Command: text, Err: ErrNoTransport}
	}

	if err := tr.Send(text); err != nil {
		return &transport.SetError{Command: text, Err: err}
	}
	c.last.Store(indexKey{target, index}, v)

	return nil
}

// WriteKey sets v at a symbolic or decimal index.
func (c *IndexCommand[T]) WriteKey(target Target, key string, v T) error {
	idx, err := c.Resolve(key)
	if err != nil {
		return err
	}

	return c.Write(target, idx, v)
}

// ReadIndexAny implements IndexAccessor.
func (c *IndexCommand[T]) ReadIndexAny(target Target, index int) (any, error) {
	return c.Read(target, index)
}

// WriteIndexAny implements IndexAccessor.
func (c *IndexCommand[T]) WriteIndexAny(target Target, index int, v any) error {
	tv, err := coerce(c.name, c.codec, v)
	if err != nil {
		return err
	}

	return c.Write(target, index, tv)
}
