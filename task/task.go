package task

import (
	"context"
	"fmt"
	"maps"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/message"

	"github.com/arloliu/go-instrument/instrument"
	"github.com/arloliu/go-instrument/logger"
)

// Procedure is the user-written part of a task. Its phases run in order on the task goroutine.
//
// An error or a panic escaping a phase is logged and marks the run as failed, but never
// skips the phases after it: Cleanup always runs once Setup was attempted.
type Procedure interface {
	Setup(t *Task) error
	Test(t *Task) error
	Cleanup(t *Task) error
}

// ProcedureFuncs adapts plain functions to a Procedure. Nil functions do nothing.
type ProcedureFuncs struct {
	SetupFunc   func(t *Task) error
	TestFunc    func(t *Task) error
	CleanupFunc func(t *Task) error
}

var _ Procedure = ProcedureFuncs{}

// Setup calls SetupFunc.
func (p ProcedureFuncs) Setup(t *Task) error { return callPhase(p.SetupFunc, t) }

// Test calls TestFunc.
func (p ProcedureFuncs) Test(t *Task) error { return callPhase(p.TestFunc, t) }

// Cleanup calls CleanupFunc.
func (p ProcedureFuncs) Cleanup(t *Task) error { return callPhase(p.CleanupFunc, t) }

func callPhase(fn func(t *Task) error, t *Task) error {
	if fn == nil {
		return nil
	}

	return fn(t)
}

// Task runs a Procedure on its own goroutine, brackets it with framework setup and cleanup
// and reports through Callbacks.
//
// Stop is cooperative: it only flips the flag reported by IsRunning, which a procedure
// must poll at safe points.
type Task struct {
	name       string
	proc       Procedure
	cfg        *config
	callbacks  Callbacks
	baseLogger logger.Logger
	printer    *message.Printer

	mu      sync.RWMutex // protects the fields of the current run below
	logger  logger.Logger
	result  *Result
	capture *captureLogger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	state       atomic.Int32
	keepRunning atomic.Bool
	aborted     atomic.Bool
	errorRaised atomic.Bool
	taskPassed  atomic.Bool

	questionMu sync.Mutex
	question   *pendingQuestion
}

// New creates an idle task running proc.
func New(name string, proc Procedure, opts ...Option) (*Task, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty task name", errInvalidOption)
	}
	if proc == nil {
		return nil, fmt.Errorf("%w: nil procedure", errInvalidOption)
	}

	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	base := cfg.logger.With("task", name)
	t := &Task{
		name:       name,
		proc:       proc,
		cfg:        cfg,
		callbacks:  cfg.callbacks,
		baseLogger: base,
		printer:    message.NewPrinter(cfg.lang),
		logger:     base,
		ctx:        context.Background(),
	}
	t.state.Store(int32(Idle))

	return t, nil
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// State returns the current lifecycle state. A finished task keeps its terminal state
// until started again.
func (t *Task) State() State { return State(t.state.Load()) }

// IsRunning reports whether the procedure should keep going. It turns false on Stop and
// once the run is over.
func (t *Task) IsRunning() bool { return t.keepRunning.Load() }

// IsAborted reports whether the current or last run was stopped.
func (t *Task) IsAborted() bool { return t.aborted.Load() }

// IsErrorRaised reports whether any phase of the current or last run failed.
func (t *Task) IsErrorRaised() bool { return t.errorRaised.Load() }

// SetTaskPassed records the verdict of the procedure. A run that never sets it fails.
func (t *Task) SetTaskPassed(passed bool) { t.taskPassed.Store(passed) }

// Logger returns the task logger. While running, its records are captured into the result.
func (t *Task) Logger() logger.Logger {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.logger
}

// Context returns the context of the current run, canceled by Stop and when the run ends.
func (t *Task) Context() context.Context {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.ctx
}

// Result returns the result of the current or last run, nil if the task never started.
func (t *Task) Result() *Result {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.result
}

// Shared returns the scratch space shared with other tasks.
func (t *Task) Shared() *SharedData { return t.cfg.shared }

// Instruments returns the names of the injected instruments, sorted.
func (t *Task) Instruments() []string {
	return slices.Sorted(maps.Keys(t.cfg.instruments))
}

// Instrument returns the named instrument. It fails with ErrTaskSetupFailed when the
// instrument was not injected or is not connected.
func (t *Task) Instrument(name string) (*instrument.Instrument, error) {
	inst, ok := t.cfg.instruments[name]
	if !ok || inst == nil {
		return nil, fmt.Errorf("%w: instrument %q not available", ErrTaskSetupFailed, name)
	}
	if !inst.IsConnected() {
		return nil, fmt.Errorf("%w: instrument %q not connected", ErrTaskSetupFailed, name)
	}

	return inst, nil
}

// Surface returns the named surface.
func (t *Task) Surface(name string) (Surface, bool) {
	s, ok := t.cfg.surfaces[name]
	return s, ok && s != nil
}

// Start begins a run on a new goroutine and returns immediately.
func (t *Task) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.State() == Running {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, t.name)
	}

	t.keepRunning.Store(true)
	t.aborted.Store(false)
	t.errorRaised.Store(false)
	t.taskPassed.Store(false)
	t.state.Store(int32(Running))

	t.result = NewResult(t.name)
	t.capture = newCaptureLogger(t.baseLogger, t.result)
	t.logger = t.capture
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.done = make(chan struct{})

	go t.run(t.result, t.capture, t.cancel, t.done)

	return nil
}

// Stop asks the running procedure to finish. It has no effect on a task that is not running.
func (t *Task) Stop() {
	t.mu.RLock()
	cancel := t.cancel
	t.mu.RUnlock()

	if t.State() != Running || !t.keepRunning.Load() {
		return
	}

	t.Logger().Info("stop requested")
	t.aborted.Store(true)
	t.keepRunning.Store(false)
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the current run has finished or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	t.mu.RLock()
	done := t.done
	t.mu.RUnlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) run(r *Result, capture *captureLogger, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer cancel()

	guarded := false
	if t.protect("basic setup", func() error { return t.basicSetup(&guarded) }) {
		if t.protect("setup", func() error { return t.proc.Setup(t) }) {
			t.protect("test", func() error { return t.proc.Test(t) })
		}
		t.protect("cleanup", func() error { return t.proc.Cleanup(t) })
	}

	t.basicCleanup(r, capture, guarded)
}

// basicSetup sets *guarded as soon as the run guard is entered, so that cleanup releases it
// even when a later step panics.
func (t *Task) basicSetup(guarded *bool) error {
	for name, inst := range t.cfg.instruments {
		if inst == nil {
			return fmt.Errorf("%w: instrument %q is nil", ErrTaskSetupFailed, name)
		}
	}
	for name, s := range t.cfg.surfaces {
		if s == nil {
			return fmt.Errorf("%w: surface %q is nil", ErrTaskSetupFailed, name)
		}
	}

	if t.cfg.guard != nil {
		t.cfg.guard.enter(t.name)
		*guarded = true
	}

	t.callbacks.Started(t.name)
	t.Text(t.printer.Sprintf(msgStarted, t.name))

	for _, s := range t.cfg.surfaces {
		s.Clear()
	}

	return nil
}

func (t *Task) basicCleanup(r *Result, capture *captureLogger, guarded bool) {
	if guarded {
		t.cfg.guard.leave(t.name)
	}

	state := Passed
	switch {
	case t.aborted.Load():
		state = Aborted
	case t.errorRaised.Load() || !t.taskPassed.Load():
		state = Failed
	}

	t.keepRunning.Store(false)
	r.finish(state)

	line := statusLine(t.printer, t.name, state, r.Stop().Sub(r.Start()).Seconds())
	t.notify("text", func() { t.Text(line) })

	capture.detach()
	if t.cfg.sink != nil {
		t.notify("result sink", func() { t.cfg.sink.Add(r) })
	}

	t.state.Store(int32(state))
	t.notify("finished", func() { t.callbacks.Finished(t.name, state) })
}

// notify calls an outside consumer during cleanup. A panic is logged and swallowed; the
// terminal state is already decided at this point.
func (t *Task) notify(what string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			kv := []any{"callback", what, "panic", rec}
			if t.cfg.traceback {
				kv = append(kv, "stack", string(debug.Stack()))
			}
			t.Logger().Error("panic in task callback", kv...)
		}
	}()

	fn()
}

// protect runs one phase, turning an error or a panic into a logged failure. It reports
// whether the phase succeeded.
func (t *Task) protect(phase string, fn func() error) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			t.errorRaised.Store(true)
			ok = false

			kv := []any{"phase", phase, "panic", rec}
			if t.cfg.traceback {
				kv = append(kv, "stack", string(debug.Stack()))
			}
			t.Logger().Error("panic in task", kv...)
		}
	}()

	if err := fn(); err != nil {
		t.errorRaised.Store(true)
		t.Logger().Error(phase+" failed", "error", err)

		return false
	}

	return true
}

// Text emits a human-readable line through the callbacks and the task log.
func (t *Task) Text(text string) {
	t.Logger().Info(text)
	t.callbacks.TextAvailable(t.name, text)
}

// AddDetail adds a named plain-data value to the result.
func (t *Task) AddDetail(name string, value any) error {
	r := t.Result()
	if r == nil {
		return fmt.Errorf("%w: task %s has no result yet", ErrTaskRunFailed, t.name)
	}

	return r.AddDetail(name, value)
}

// AddDetails adds several details to the result, in name order.
func (t *Task) AddDetails(details map[string]any) error {
	for _, name := range slices.Sorted(maps.Keys(details)) {
		if err := t.AddDetail(name, details[name]); err != nil {
			return err
		}
	}

	return nil
}

// CreateTable creates a result table.
func (t *Task) CreateTable(name string, header ...string) error {
	r := t.Result()
	if r == nil {
		return fmt.Errorf("%w: task %s has no result yet", ErrTaskRunFailed, t.name)
	}

	return r.CreateTable(name, header...)
}

// AddDataToTable appends a row to a result table and reports it through DataAvailable.
func (t *Task) AddDataToTable(name string, row ...any) error {
	r := t.Result()
	if r == nil {
		return fmt.Errorf("%w: task %s has no result yet", ErrTaskRunFailed, t.name)
	}
	if err := r.AddRow(name, row...); err != nil {
		return err
	}
	t.callbacks.DataAvailable(t.name, name, slices.Clone(row))

	return nil
}

// RequestFigureUpdate asks the callbacks to redraw the named surface.
func (t *Task) RequestFigureUpdate(surface string) {
	t.callbacks.FigureUpdateRequested(t.name, surface)
}

// NotifyDataAvailable reports data to the callbacks without storing it.
func (t *Task) NotifyDataAvailable(name string, data any) {
	t.callbacks.DataAvailable(t.name, name, data)
}

// NotifyParameterChanged reports a changed procedure parameter to the callbacks.
func (t *Task) NotifyParameterChanged(name string, value any) {
	t.callbacks.ParameterChanged(t.name, name, value)
}

// Elapsed returns the running time of the current run, or the duration of the last one.
func (t *Task) Elapsed() time.Duration {
	r := t.Result()
	if r == nil {
		return 0
	}
	if stop := r.Stop(); !stop.IsZero() {
		return stop.Sub(r.Start())
	}

	return time.Since(r.Start())
}
