package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// RunOutcomeLabel is the final status of a run.
type RunOutcomeLabel string

const (
	RunOutcomeSuccess  RunOutcomeLabel = "success"
	RunOutcomeNoop     RunOutcomeLabel = "noop"
	RunOutcomeFailed   RunOutcomeLabel = "failed"
	RunOutcomeCanceled RunOutcomeLabel = "canceled"
)

// NodeResultLabel is what happened to a node in the write pass.
type NodeResultLabel string

const (
	NodeWritten NodeResultLabel = "written"
	NodeSkipped NodeResultLabel = "skipped"
	NodeFailed  NodeResultLabel = "failed"
)

// Recorder defines observability hooks for runs, stages and nodes.
// Implementations must be safe for concurrent use.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveRunDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncRunOutcome(outcome RunOutcomeLabel)
	ObserveNodeRenderDuration(handler string, d time.Duration)
	IncNodeResult(handler string, result NodeResultLabel)
	SetTreeSize(n int)
	SetRenderConcurrency(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration)      {}
func (NoopRecorder) ObserveRunDuration(time.Duration)                {}
func (NoopRecorder) IncStageResult(string, ResultLabel)              {}
func (NoopRecorder) IncRunOutcome(RunOutcomeLabel)                   {}
func (NoopRecorder) ObserveNodeRenderDuration(string, time.Duration) {}
func (NoopRecorder) IncNodeResult(string, NodeResultLabel)           {}
func (NoopRecorder) SetTreeSize(int)                                 {}
func (NoopRecorder) SetRenderConcurrency(int)                        {}
