package task

import (
	"slices"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// RunGuard is the shared "a task is running" state of the tasks that use it.
//
// Tasks mark the guard in their setup and release it in their cleanup. The guard does not
// block anything by itself; owners consult it to serialize task execution.
type RunGuard struct {
	count atomic.Int32
	names *xsync.MapOf[string, int]
}

// NewRunGuard creates an idle guard.
func NewRunGuard() *RunGuard {
	return &RunGuard{names: xsync.NewMapOf[string, int]()}
}

// IsRunning reports whether any task using the guard is running.
func (g *RunGuard) IsRunning() bool { return g.count.Load() > 0 }

// Running returns the names of the running tasks, sorted.
func (g *RunGuard) Running() []string {
	var out []string
	g.names.Range(func(name string, _ int) bool {
		out = append(out, name)
		return true
	})
	slices.Sort(out)

	return out
}

func (g *RunGuard) enter(name string) {
	g.count.Add(1)
	g.names.Compute(name, func(n int, _ bool) (int, bool) { return n + 1, false })
}

func (g *RunGuard) leave(name string) {
	g.names.Compute(name, func(n int, _ bool) (int, bool) {
		return n - 1, n <= 1
	})
	g.count.Add(-1)
}
