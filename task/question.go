package task

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/go-instrument/internal/pool"
)

// DefaultPollInterval is how often AskQuestion checks for an answer.
const DefaultPollInterval = 50 * time.Millisecond

// AnswerType is the expected type of an answer.
type AnswerType int

const (
	AnswerString AnswerType = iota
	AnswerInt
	AnswerFloat
	AnswerBool
)

func (a AnswerType) String() string {
	switch a {
	case AnswerString:
		return "string"
	case AnswerInt:
		return "int"
	case AnswerFloat:
		return "float"
	case AnswerBool:
		return "bool"
	default:
		return fmt.Sprintf("AnswerType(%d)", int(a))
	}
}

func (a AnswerType) parse(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch a {
	case AnswerInt:
		return strconv.Atoi(raw)
	case AnswerFloat:
		return strconv.ParseFloat(raw, 64)
	case AnswerBool:
		switch strings.ToLower(raw) {
		case "y", "yes", "1", "true", "ok":
			return true, nil
		case "n", "no", "0", "false":
			return false, nil
		}

		return nil, fmt.Errorf("not a yes/no answer: %q", raw)
	default:
		return raw, nil
	}
}

// Question is a prompt handed to Callbacks.NewQuestion.
type Question struct {
	ID       string
	Prompt   string
	Expected AnswerType
	Timeout  time.Duration
}

type pendingQuestion struct {
	q      Question
	answer chan any
}

// AskQuestion hands prompt to the callbacks and blocks the task goroutine until an answer of
// the expected type arrives through Answer, the task is stopped or timeout elapses.
// A stop or a timeout fails with ErrTaskRunFailed naming the prompt.
func (t *Task) AskQuestion(prompt string, expected AnswerType, timeout time.Duration) (any, error) {
	p := &pendingQuestion{
		q: Question{
			ID:       uuid.NewString(),
			Prompt:   prompt,
			Expected: expected,
			Timeout:  timeout,
		},
		answer: make(chan any, 1),
	}

	t.questionMu.Lock()
	t.question = p
	t.questionMu.Unlock()

	defer func() {
		t.questionMu.Lock()
		if t.question == p {
			t.question = nil
		}
		t.questionMu.Unlock()
	}()

	t.Logger().Debug("question asked", "id", p.q.ID, "prompt", prompt, "expected", expected.String())
	t.callbacks.NewQuestion(t.name, p.q)

	deadline := time.Now().Add(timeout)
	for {
		select {
		case v := <-p.answer:
			return v, nil
		default:
		}

		if !t.IsRunning() {
			return nil, fmt.Errorf("%w: question %q: task stopped", ErrTaskRunFailed, prompt)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: question %q not answered within %v", ErrTaskRunFailed, prompt, timeout)
		}

		_ = pool.Sleep(t.Context(), min(t.cfg.pollInterval, remaining))
	}
}

// Answer answers the pending question. raw is converted to the expected type.
func (t *Task) Answer(raw string) error {
	t.questionMu.Lock()
	p := t.question
	t.questionMu.Unlock()

	if p == nil {
		return ErrNoQuestion
	}

	v, err := p.q.Expected.parse(raw)
	if err != nil {
		return fmt.Errorf("task: answer to %q: %w", p.q.Prompt, err)
	}

	select {
	case p.answer <- v:
		return nil
	default:
		return fmt.Errorf("%w: %q already answered", ErrNoQuestion, p.q.Prompt)
	}
}

// PendingQuestion returns the question currently waiting for an answer.
func (t *Task) PendingQuestion() (Question, bool) {
	t.questionMu.Lock()
	defer t.questionMu.Unlock()

	if t.question == nil {
		return Question{}, false
	}

	return t.question.q, true
}
