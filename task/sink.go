package task

import (
	"slices"
	"sync"
)

// ResultSink receives the result of every finished run.
type ResultSink interface {
	Add(r *Result)
}

// ResultList is a ResultSink keeping results in memory, in completion order.
type ResultList struct {
	mu      sync.Mutex
	results []*Result
}

var _ ResultSink = (*ResultList)(nil)

// Add implements ResultSink.
func (l *ResultList) Add(r *Result) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.results = append(l.results, r)
}

// Results returns the collected results.
func (l *ResultList) Results() []*Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	return slices.Clone(l.results)
}

// Last returns the most recent result.
func (l *ResultList) Last() (*Result, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.results) == 0 {
		return nil, false
	}

	return l.results[len(l.results)-1], true
}
