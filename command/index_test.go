package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-instrument/transport"
)

func TestIndexCommand_RoundTrip(t *testing.T) {
	tr := newFakeTransport()
	target := &fakeTarget{tr: tr}

	level := NewIndexFloat("LEV", ReadWrite, 1, 4)
	for _, idx := range level.Indices() {
		v := float64(idx) * 1.25
		require.NoError(t, level.Write(target, idx, v))

		got, err := level.Read(target, idx)
		require.NoError(t, err)
		assert.Equal(t, v, got)

		last, ok := level.Last(target, idx)
		require.True(t, ok)
		assert.Equal(t, v, last)
	}

	assert.Equal(t, "LEV 1,1.25", tr.sends()[0])
	assert.Equal(t, "LEV? 1", tr.sends()[1])
}

func TestIndexCommand_OutOfRangeNoTraffic(t *testing.T) {
	tr := newFakeTransport()
	target := &fakeTarget{tr: tr}

	out := NewIndexBool("OUTP", ReadWrite, 1, 3)
	for _, idx := range []int{-1, 0, 4, 100} {
		_, err := out.Read(target, idx)
		require.ErrorIs(t, err, ErrIndex)

		err = out.Write(target, idx, true)
		require.ErrorIs(t, err, ErrIndex)

		var ie *IndexError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, 1, ie.Min)
		assert.Equal(t, 3, ie.Max)
		assert.Contains(t, err.Error(), "[1, 3]")
	}

	assert.Empty(t, tr.sends())
}

func TestIndexCommand_SymbolicNames(t *testing.T) {
	tr := newFakeTransport()
	target := &fakeTarget{tr: tr}

	out := NewIndexBool("OUTP", ReadWrite, 1, 3,
		WithIndexNames(map[string]int{"ch1": 1, "ch2": 2, "aux": 9}))

	require.NoError(t, out.WriteKey(target, "CH2", true))
	on, err := out.ReadKey(target, "ch2")
	require.NoError(t, err)
	assert.True(t, on)

	tr.replies["OUTP? 3"] = "OFF"
	on, err = out.ReadKey(target, "3")
	require.NoError(t, err)
	assert.False(t, on)

	// a name that resolves outside the range is still rejected
	_, err = out.ReadKey(target, "aux")
	var ie *IndexError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "aux", ie.Value)

	err = out.WriteKey(target, "ch9", false)
	require.ErrorIs(t, err, ErrIndex)

	assert.Equal(t, []string{"OUTP 2,1", "OUTP? 2", "OUTP? 3"}, tr.sends())
	assert.Equal(t, []string{"aux", "ch1", "ch2"}, out.Names())
}

func TestIndexCommand_Directions(t *testing.T) {
	tr := newFakeTransport()
	target := &fakeTarget{tr: tr}

	meas := NewIndexFloat("MEAS", ReadOnly, 1, 2)
	require.ErrorIs(t, meas.Write(target, 1, 1.0), ErrNotWritable)

	trig := NewIndexInt("TRIG", WriteOnly, 1, 2)
	_, err := trig.Read(target, 1)
	require.ErrorIs(t, err, ErrNotReadable)

	assert.Empty(t, tr.sends())
}

func TestIndexCommand_Dict(t *testing.T) {
	tr := newFakeTransport()
	target := &fakeTarget{tr: tr}

	coupling := NewIndexDict("COUP", ReadWrite, 1, 2, map[string]string{"ac": "AC", "dc": "DC"})
	require.NoError(t, coupling.Write(target, 2, "dc"))

	v, err := coupling.Read(target, 2)
	require.NoError(t, err)
	assert.Equal(t, "dc", v)

	require.ErrorIs(t, coupling.Write(target, 1, "gnd"), ErrUnknownKey)

	tr.replies["COUP? 1"] = "GND"
	_, err = coupling.Read(target, 1)
	require.ErrorIs(t, err, ErrUnmappedValue)

	var qe *transport.QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "GND", qe.Reply)
}

func TestIndexCommand_AnyAndFormats(t *testing.T) {
	tr := newFakeTransport()
	target := &fakeTarget{tr: tr}

	name := NewIndexString("LABEL", ReadWrite, 0, 1,
		WithGetFormat("%[1]s%[2]d?"), WithSetFormat("%[1]s%[2]d %[3]q"))

	require.NoError(t, name.WriteIndexAny(target, 0, "left"))
	_, err := name.ReadIndexAny(target, 1)
	require.NoError(t, err)
	require.ErrorIs(t, name.WriteIndexAny(target, 0, 5), ErrValueType)

	assert.Equal(t, []string{`LABEL0 "left"`, "LABEL1?"}, tr.sends())

	lo, hi := name.Range()
	assert.Equal(t, 0, lo)
	assert.Equal(t, 1, hi)
	assert.Equal(t, "LABEL1?", name.Query(1))
}

func TestNewIndex_EmptyRangePanics(t *testing.T) {
	assert.Panics(t, func() { NewIndexInt("X", ReadWrite, 3, 1) })
}

func TestIndexCommand_Forget(t *testing.T) {
	level := NewIndexFloat("LEV", ReadWrite, 1, 2)
	a := &fakeTarget{tr: newFakeTransport()}
	b := &fakeTarget{tr: newFakeTransport()}

	for _, idx := range level.Indices() {
		require.NoError(t, level.Write(a, idx, 1.5))
		require.NoError(t, level.Write(b, idx, 2.5))
	}
	level.Forget(a)

	for _, idx := range level.Indices() {
		_, ok := level.Last(a, idx)
		assert.False(t, ok)
		v, ok := level.Last(b, idx)
		require.True(t, ok)
		assert.Equal(t, 2.5, v)
	}
}
