package website

import (
	"time"
)

// State is the phase a website is in.
type State string

const (
	StateIdle     State = "idle"
	StateBuilding State = "building"
	StateBuilt    State = "built"
	StateWriting  State = "writing"
	StateDone     State = "done"
)

// Status is the outcome of a run.
type Status string

const (
	// StatusSuccess means at least one node was written and nothing failed.
	StatusSuccess Status = "success"
	// StatusNoop means nothing had to be written.
	StatusNoop Status = "noop"
	// StatusFailed means a node or a path failed; the rest was written.
	StatusFailed Status = "failed"
	// StatusCanceled means the run was aborted and nothing was committed.
	StatusCanceled Status = "canceled"
)

// IsSuccess reports whether the run needs no attention.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess || s == StatusNoop
}

// NodeFailure is a node that could not be rendered or written.
type NodeFailure struct {
	ALCN    string
	Handler string
	Err     error
}

// Result is the outcome of Website.Render.
type Result struct {
	RunID  string
	Status Status

	// Written and Skipped hold alcns, sorted.
	Written []string
	Skipped []string
	Failed  []NodeFailure
	// CreationErrors are the paths that produced no node.
	CreationErrors []error
	Nodes          int

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// HasFailures reports whether any path or node failed.
func (r *Result) HasFailures() bool {
	return len(r.Failed) > 0 || len(r.CreationErrors) > 0
}

func (r *Result) finish(now time.Time) {
	r.EndTime = now
	r.Duration = r.EndTime.Sub(r.StartTime)
	if r.Status != "" {
		return
	}
	switch {
	case r.HasFailures():
		r.Status = StatusFailed
	case len(r.Written) == 0:
		r.Status = StatusNoop
	default:
		r.Status = StatusSuccess
	}
}
