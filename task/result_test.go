package task

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestResult_Details(t *testing.T) {
	r := NewResult("ramp")
	assert.NotEmpty(t, r.ID())
	assert.Equal(t, "ramp", r.Task())
	assert.Equal(t, Running, r.State())
	assert.True(t, r.Stop().IsZero())

	require.NoError(t, r.AddDetail("serial", "SN123"))
	require.NoError(t, r.AddDetail("limits", map[string]any{"low": 1.5, "high": []int{2, 3}}))
	require.NoError(t, r.AddDetail("serial", "SN124"))
	require.NoError(t, r.AddDetail("calibrated", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, r.AddDetail("note", nil))

	details := r.Details()
	require.Len(t, details, 4)
	assert.Equal(t, "serial", details[0].Name)
	assert.Equal(t, "SN124", details[0].Value)
	assert.Equal(t, "limits", details[1].Name)

	_, ok := r.Detail("missing")
	assert.False(t, ok)
}

func TestResult_RejectsInvalidDetails(t *testing.T) {
	type point struct{ X, Y int }
	x := 1

	tests := []struct {
		name  string
		key   string
		value any
		err   error
	}{
		{name: "reserved", key: FieldState, value: "x", err: ErrReservedName},
		{name: "reserved tables", key: FieldTables, value: 1, err: ErrReservedName},
		{name: "empty name", key: "", value: 1, err: ErrReservedName},
		{name: "struct", key: "p", value: point{1, 2}, err: ErrNotPlainData},
		{name: "pointer", key: "p", value: &x, err: ErrNotPlainData},
		{name: "func", key: "f", value: func() {}, err: ErrNotPlainData},
		{name: "int keys", key: "m", value: map[int]string{1: "a"}, err: ErrNotPlainData},
		{name: "nested channel", key: "c", value: []any{1, make(chan int)}, err: ErrNotPlainData},
		{name: "NaN", key: "reading", value: math.NaN(), err: ErrNotPlainData},
		{name: "infinity", key: "reading", value: math.Inf(-1), err: ErrNotPlainData},
		{name: "nested NaN", key: "readings", value: map[string]any{"ch1": []float32{1, float32(math.Inf(1))}}, err: ErrNotPlainData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResult("t")
			assert.ErrorIs(t, r.AddDetail(tt.key, tt.value), tt.err)
			assert.Empty(t, r.Details())
		})
	}
}

func TestResult_Tables(t *testing.T) {
	r := NewResult("sweep")

	require.ErrorIs(t, r.AddRow("iv", 1, 2), ErrNoSuchTable)
	require.ErrorIs(t, r.CreateTable(FieldLog), ErrReservedName)

	require.NoError(t, r.CreateTable("iv", "voltage", "current"))
	require.NoError(t, r.AddRow("iv", 1.0, 0.1))
	require.NoError(t, r.AddRow("iv", 2.0, 0.2))
	require.ErrorIs(t, r.AddRow("iv", 3.0), ErrRowWidth)
	require.ErrorIs(t, r.AddRow("iv", 3.0, struct{}{}), ErrNotPlainData)

	require.NoError(t, r.CreateTable("free"))
	require.NoError(t, r.AddRow("free", "a"))
	require.NoError(t, r.AddRow("free", "a", "b", "c"))

	tbl, ok := r.Table("iv")
	require.True(t, ok)
	assert.Equal(t, []string{"voltage", "current"}, tbl.Header)
	assert.Equal(t, [][]any{{1.0, 0.1}, {2.0, 0.2}}, tbl.Rows)

	// returned tables are copies
	tbl.Rows[0][0] = 99.0
	again, _ := r.Table("iv")
	assert.Equal(t, 1.0, again.Rows[0][0])

	// recreating a table resets it in place
	require.NoError(t, r.CreateTable("iv", "v"))
	tables := r.Tables()
	require.Len(t, tables, 2)
	assert.Equal(t, "iv", tables[0].Name)
	assert.Empty(t, tables[0].Rows)
}

func TestResult_CaptureAndFinish(t *testing.T) {
	r := NewResult("t")
	r.appendLog("info line", false)
	r.appendLog("error line", true)
	r.finish(Aborted)

	assert.Equal(t, []string{"info line", "error line"}, r.Log())
	assert.Equal(t, []string{"error line"}, r.Errors())
	assert.Equal(t, Aborted, r.State())
	assert.False(t, r.Stop().IsZero())
}

func TestResult_MarshalJSON(t *testing.T) {
	r := NewResult("json")
	require.NoError(t, r.AddDetail("gain", 2.5))
	require.NoError(t, r.CreateTable("t", "a"))
	require.NoError(t, r.AddRow("t", 1))

	b, err := json.Marshal(r)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, r.ID(), got[FieldID])
	assert.Equal(t, "json", got[FieldTask])
	assert.Equal(t, "running", got[FieldState])
	assert.NotContains(t, got, FieldStop)
	assert.Equal(t, []any{}, got[FieldLog])
	assert.Equal(t, map[string]any{"gain": 2.5}, got[FieldDetails])

	require.ErrorIs(t, r.AddDetail("reading", math.NaN()), ErrNotPlainData)
	require.ErrorIs(t, r.AddRow("t", math.Inf(1)), ErrNotPlainData)

	r.finish(Passed)
	b, err = json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"state":"passed"`)
	assert.Contains(t, string(b), `"stop":`)
}

func TestResult_WriteYAML(t *testing.T) {
	r := NewResult("yaml")
	require.NoError(t, r.AddDetail("zeta", 1))
	require.NoError(t, r.AddDetail("alpha", []string{"x", "y"}))
	require.NoError(t, r.CreateTable("t", "a"))
	r.appendLog("hello", false)
	r.finish(Failed)

	var buf bytes.Buffer
	require.NoError(t, r.WriteYAML(&buf))
	out := buf.String()

	var top yaml.Node
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &top))
	doc := top.Content[0]
	var keys []string
	for i := 0; i < len(doc.Content); i += 2 {
		keys = append(keys, doc.Content[i].Value)
	}
	assert.Equal(t, []string{
		FieldID, FieldTask, FieldStart, FieldStop, FieldState,
		FieldLog, FieldErrors, FieldDetails, FieldTables,
	}, keys)

	assert.Less(t, strings.Index(out, "zeta:"), strings.Index(out, "alpha:"))
	assert.Contains(t, out, "state: failed")

	var decoded struct {
		State   State          `yaml:"state"`
		Details map[string]any `yaml:"details"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, Failed, decoded.State)
	assert.Equal(t, 1, decoded.Details["zeta"])
}

func TestResultList(t *testing.T) {
	var l ResultList
	_, ok := l.Last()
	assert.False(t, ok)

	a, b := NewResult("a"), NewResult("b")
	l.Add(a)
	l.Add(b)

	last, ok := l.Last()
	require.True(t, ok)
	assert.Same(t, b, last)
	assert.Equal(t, []*Result{a, b}, l.Results())
}
