package task

import (
	"github.com/arloliu/go-instrument/logger"
)

// Callbacks is the notification contract through which a task reaches the outside world.
//
// A task never draws, prints or stores anything itself; implementations decide how the
// notifications are presented. Methods are called from the task goroutine and should
// return quickly.
type Callbacks interface {
	// Started is called once the task is set up and about to run its procedure.
	Started(task string)
	// Finished is called with the terminal state once the task has been cleaned up.
	Finished(task string, state State)
	// TextAvailable delivers a human-readable status line.
	TextAvailable(task string, text string)
	// ParameterChanged reports a procedure parameter that changed while running.
	ParameterChanged(task string, name string, value any)
	// FigureUpdateRequested asks the consumer to redraw the named surface.
	FigureUpdateRequested(task string, surface string)
	// DataAvailable reports new data, e.g. a row added to a result table.
	DataAvailable(task string, name string, data any)
	// NewQuestion hands a question to whoever can answer it through Task.Answer.
	NewQuestion(task string, q Question)
}

// NopCallbacks ignores every notification.
type NopCallbacks struct{}

var _ Callbacks = NopCallbacks{}

// Started implements Callbacks.
func (NopCallbacks) Started(string) {}

// Finished implements Callbacks.
func (NopCallbacks) Finished(string, State) {}

// TextAvailable implements Callbacks.
func (NopCallbacks) TextAvailable(string, string) {}

// ParameterChanged implements Callbacks.
func (NopCallbacks) ParameterChanged(string, string, any) {}

// FigureUpdateRequested implements Callbacks.
func (NopCallbacks) FigureUpdateRequested(string, string) {}

// DataAvailable implements Callbacks.
func (NopCallbacks) DataAvailable(string, string, any) {}

// NewQuestion implements Callbacks.
func (NopCallbacks) NewQuestion(string, Question) {}

// LogCallbacks writes every notification to a logger, for headless runs.
type LogCallbacks struct {
	Logger logger.Logger
}

var _ Callbacks = (*LogCallbacks)(nil)

// NewLogCallbacks returns LogCallbacks writing to l, or to the default logger when l is nil.
func NewLogCallbacks(l logger.Logger) *LogCallbacks {
	if l == nil {
		l = logger.GetLogger()
	}

	return &LogCallbacks{Logger: l}
}

// Started logs the start at info level.
func (c *LogCallbacks) Started(task string) {
	c.Logger.Info("task started", "task", task)
}

// Finished logs the terminal state at info level.
func (c *LogCallbacks) Finished(task string, state State) {
	c.Logger.Info("task finished", "task", task, "state", state.String())
}

// TextAvailable logs text as an info message.
func (c *LogCallbacks) TextAvailable(task string, text string) {
	c.Logger.Info(text, "task", task)
}

// ParameterChanged logs the change at debug level.
func (c *LogCallbacks) ParameterChanged(task string, name string, value any) {
	c.Logger.Debug("parameter changed", "task", task, "name", name, "value", value)
}

// FigureUpdateRequested logs the request at debug level.
func (c *LogCallbacks) FigureUpdateRequested(task string, surface string) {
	c.Logger.Debug("figure update requested", "task", task, "surface", surface)
}

// DataAvailable logs the data at debug level.
func (c *LogCallbacks) DataAvailable(task string, name string, data any) {
	c.Logger.Debug("data available", "task", task, "name", name, "data", data)
}

// NewQuestion warns that nobody can answer q; the question then times out.
func (c *LogCallbacks) NewQuestion(task string, q Question) {
	c.Logger.Warn("question asked, no one to answer", "task", task, "id", q.ID, "prompt", q.Prompt)
}
