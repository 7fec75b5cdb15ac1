package project

import (
	"fmt"

	perrors "github.com/p-blackswan/project-builder/internal/errors"
)

// Status is the run state of a project.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusStopped    Status = "stopped"
)

// transitions lists every legal from → to edge. Terminal states only lead back
// to queued, which is the amend re-entry.
var transitions = map[Status]map[Status]bool{
	StatusQueued: {
		StatusGenerating: true,
		StatusStopped:    true,
		StatusFailed:     true,
	},
	StatusGenerating: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusStopped:   true,
	},
	StatusCompleted: {StatusQueued: true},
	StatusFailed:    {StatusQueued: true},
	StatusStopped:   {StatusQueued: true},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Active reports whether a run owns the project (queued or generating).
func (s Status) Active() bool {
	return s == StatusQueued || s == StatusGenerating
}

// Terminal reports whether s ends a run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusStopped
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// Transition moves the project to status to. It is the only writer of Status
// after creation. Re-entering queued resets progress for the new run.
func (p *Project) Transition(to Status) error {
	if !CanTransition(p.Status, to) {
		return fmt.Errorf("%w: %s -> %s", perrors.ErrInvalidTransition, p.Status, to)
	}
	p.Status = to
	switch to {
	case StatusQueued:
		p.Progress = 0
	case StatusCompleted:
		p.Progress = 100
	}
	return nil
}

// SetProgress raises progress to pct. Progress never decreases within a run.
func (p *Project) SetProgress(pct int) {
	if pct > 100 {
		pct = 100
	}
	if pct > p.Progress {
		p.Progress = pct
	}
}

// Progress computes floor(100*completed/total). An empty plan counts as done.
func Progress(completed, total int) int {
	if total <= 0 {
		return 100
	}
	if completed >= total {
		return 100
	}
	return 100 * completed / total
}
