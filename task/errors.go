package task

import "errors"

var (
	// ErrTaskSetupFailed indicates that a task could not be set up, e.g. an instrument
	// required by the procedure is missing or not connected.
	ErrTaskSetupFailed = errors.New("task: setup failed")

	// ErrTaskRunFailed indicates a failure while the task runs, e.g. an unanswered question.
	ErrTaskRunFailed = errors.New("task: run failed")

	// ErrAlreadyRunning indicates a Start of a task that is still running.
	ErrAlreadyRunning = errors.New("task: already running")

	// ErrReservedName indicates a detail or table name that collides with a result field.
	ErrReservedName = errors.New("task: reserved result name")

	// ErrNotPlainData indicates a result value that is not representable as plain data.
	ErrNotPlainData = errors.New("task: value is not plain data")

	// ErrNoSuchTable indicates rows added to a table that was never created.
	ErrNoSuchTable = errors.New("task: no such table")

	// ErrRowWidth indicates a table row whose length differs from the header.
	ErrRowWidth = errors.New("task: row width does not match header")

	// ErrNoQuestion indicates an answer given while no question is pending.
	ErrNoQuestion = errors.New("task: no question pending")
)
