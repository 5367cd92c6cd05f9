package task

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Result field names. Details and tables must not reuse them.
const (
	FieldID      = "id"
	FieldTask    = "task"
	FieldStart   = "start"
	FieldStop    = "stop"
	FieldState   = "state"
	FieldLog     = "log"
	FieldErrors  = "errors"
	FieldDetails = "details"
	FieldTables  = "tables"
)

var reservedNames = map[string]struct{}{
	FieldID: {}, FieldTask: {}, FieldStart: {}, FieldStop: {}, FieldState: {},
	FieldLog: {}, FieldErrors: {}, FieldDetails: {}, FieldTables: {},
}

// Table is a named data table with a header and rows of plain values.
type Table struct {
	Name   string   `json:"name" yaml:"name"`
	Header []string `json:"header" yaml:"header"`
	Rows   [][]any  `json:"rows" yaml:"rows"`
}

// Detail is one caller-added result field.
type Detail struct {
	Name  string `json:"name" yaml:"name"`
	Value any    `json:"value" yaml:"value"`
}

// Result is the structured outcome of one task run.
//
// Every field holds plain data only: scalars, strings, and lists or string-keyed maps
// of the same, so that any serializer can persist it.
type Result struct {
	mu      sync.Mutex
	id      string
	task    string
	start   time.Time
	stop    time.Time
	state   State
	log     []string
	errors  []string
	details []Detail
	tables  []*Table
}

// NewResult creates a result for task stamped with the current time.
func NewResult(task string) *Result {
	return &Result{
		id:    uuid.NewString(),
		task:  task,
		start: time.Now(),
		state: Running,
	}
}

// ID returns the unique run identifier.
func (r *Result) ID() string { return r.id }

// Task returns the task name.
func (r *Result) Task() string { return r.task }

// Start returns the start time.
func (r *Result) Start() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.start
}

// Stop returns the stop time, zero while running.
func (r *Result) Stop() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.stop
}

// State returns Running until the task finished, then its terminal state.
func (r *Result) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state
}

// Log returns the captured log lines.
func (r *Result) Log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.log)
}

// Errors returns the captured error-level log lines.
func (r *Result) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.errors)
}

func (r *Result) appendLog(line string, isError bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log = append(r.log, line)
	if isError {
		r.errors = append(r.errors, line)
	}
}

func (r *Result) finish(state State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stop = time.Now()
	r.state = state
}

// AddDetail adds or replaces a named detail. value must be plain data.
func (r *Result) AddDetail(name string, value any) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := checkPlain(value); err != nil {
		return fmt.Errorf("detail %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if i := slices.IndexFunc(r.details, func(d Detail) bool { return d.Name == name }); i >= 0 {
		r.details[i].Value = value
		return nil
	}
	r.details = append(r.details, Detail{Name: name, Value: value})

	return nil
}

// Detail returns the value of a named detail.
func (r *Result) Detail(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.details {
		if d.Name == name {
			return d.Value, true
		}
	}

	return nil, false
}

// Details returns the details in insertion order.
func (r *Result) Details() []Detail {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.details)
}

// CreateTable creates an empty table, replacing any table of the same name.
func (r *Result) CreateTable(name string, header ...string) error {
	if err := checkName(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tbl := &Table{Name: name, Header: slices.Clone(header), Rows: [][]any{}}
	if i := slices.IndexFunc(r.tables, func(t *Table) bool { return t.Name == name }); i >= 0 {
		r.tables[i] = tbl
		return nil
	}
	r.tables = append(r.tables, tbl)

	return nil
}

// AddRow appends a row to a table. The row must match the header width and hold plain data.
func (r *Result) AddRow(name string, row ...any) error {
	for i, v := range row {
		if err := checkPlain(v); err != nil {
			return fmt.Errorf("table %q column %d: %w", name, i, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := slices.IndexFunc(r.tables, func(t *Table) bool { return t.Name == name })
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrNoSuchTable, name)
	}

	tbl := r.tables[i]
	if len(tbl.Header) > 0 && len(row) != len(tbl.Header) {
		return fmt.Errorf("%w: table %q has %d columns, got %d", ErrRowWidth, name, len(tbl.Header), len(row))
	}
	tbl.Rows = append(tbl.Rows, slices.Clone(row))

	return nil
}

// Table returns a copy of a named table.
func (r *Result) Table(name string) (Table, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tables {
		if t.Name == name {
			return cloneTable(t), true
		}
	}

	return Table{}, false
}

// Tables returns copies of all tables in creation order.
func (r *Result) Tables() []Table {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Table, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, cloneTable(t))
	}

	return out
}

func cloneTable(t *Table) Table {
	rows := make([][]any, len(t.Rows))
	for i, row := range t.Rows {
		rows[i] = slices.Clone(row)
	}

	return Table{Name: t.Name, Header: slices.Clone(t.Header), Rows: rows}
}

// resultData is the serialized shape of a Result.
type resultData struct {
	ID      string         `json:"id" yaml:"id"`
	Task    string         `json:"task" yaml:"task"`
	Start   time.Time      `json:"start" yaml:"start"`
	Stop    *time.Time     `json:"stop,omitempty" yaml:"stop,omitempty"`
	State   State          `json:"state" yaml:"state"`
	Log     []string       `json:"log" yaml:"log"`
	Errors  []string       `json:"errors" yaml:"errors"`
	Details map[string]any `json:"details" yaml:"-"`
	Tables  []Table        `json:"tables" yaml:"tables"`
}

func (r *Result) data() resultData {
	r.mu.Lock()
	d := resultData{
		ID:      r.id,
		Task:    r.task,
		Start:   r.start,
		State:   r.state,
		Log:     slices.Clone(r.log),
		Errors:  slices.Clone(r.errors),
		Details: make(map[string]any, len(r.details)),
	}
	if !r.stop.IsZero() {
		stop := r.stop
		d.Stop = &stop
	}
	for _, det := range r.details {
		d.Details[det.Name] = det.Value
	}
	r.mu.Unlock()

	d.Tables = r.Tables()
	if d.Log == nil {
		d.Log = []string{}
	}
	if d.Errors == nil {
		d.Errors = []string{}
	}

	return d
}

// MarshalJSON implements json.Marshaler.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.data())
}

// MarshalYAML implements yaml.Marshaler. Details keep their insertion order.
func (r *Result) MarshalYAML() (any, error) {
	d := r.data()

	var node yaml.Node
	if err := node.Encode(d); err != nil {
		return nil, err
	}

	details := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, det := range r.Details() {
		var v yaml.Node
		if err := v.Encode(det.Value); err != nil {
			return nil, fmt.Errorf("detail %q: %w", det.Name, err)
		}
		details.Content = append(details.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: det.Name}, &v)
	}

	// details go right before tables
	content := node.Content
	at := len(content)
	for i := 0; i < len(content); i += 2 {
		if content[i].Value == FieldTables {
			at = i
			break
		}
	}
	key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: FieldDetails}
	node.Content = append(content[:at:at], append([]*yaml.Node{key, details}, content[at:]...)...)

	return &node, nil
}

// WriteYAML writes r as a YAML document.
func (r *Result) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}

	return enc.Close()
}

func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrReservedName)
	}
	if _, ok := reservedNames[name]; ok {
		return fmt.Errorf("%w: %q", ErrReservedName, name)
	}

	return nil
}

var timeType = reflect.TypeOf(time.Time{})

// checkPlain verifies that v is nil, a scalar, a string, a time, or a slice, array or
// string-keyed map of the same. Floats must be finite so that every serializer accepts them.
func checkPlain(v any) error {
	if v == nil {
		return nil
	}

	return checkPlainValue(reflect.ValueOf(v))
}

func checkPlainValue(v reflect.Value) error {
	if v.Type() == timeType {
		return nil
	}

	switch v.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return nil
	case reflect.Float32, reflect.Float64:
		if f := v.Float(); math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite float %v", ErrNotPlainData, f)
		}

		return nil
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		if v.Kind() == reflect.Pointer {
			return fmt.Errorf("%w: pointer %s", ErrNotPlainData, v.Type())
		}

		return checkPlainValue(v.Elem())
	case reflect.Slice, reflect.Array:
		for i := range v.Len() {
			if err := checkPlainValue(v.Index(i)); err != nil {
				return err
			}
		}

		return nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("%w: map key %s", ErrNotPlainData, v.Type().Key())
		}
		iter := v.MapRange()
		for iter.Next() {
			if err := checkPlainValue(iter.Value()); err != nil {
				return err
			}
		}

		return nil
	default:
		return fmt.Errorf("%w: %s", ErrNotPlainData, v.Type())
	}
}
