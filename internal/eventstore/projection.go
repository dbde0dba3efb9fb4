package eventstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

const runStatusRunning = "running"

// RunSummary is a read model summarizing one run.
type RunSummary struct {
	RunID          string     `json:"run_id"`
	Status         string     `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Written        int        `json:"written"`
	Skipped        int        `json:"skipped"`
	Failed         int        `json:"failed"`
	CreationErrors int        `json:"creation_errors"`
	FailedNodes    []string   `json:"failed_nodes,omitempty"`
	WrittenNodes   []string   `json:"written_nodes,omitempty"`
}

// RunHistoryProjection rebuilds run summaries from the journal.
type RunHistoryProjection struct {
	mu      sync.RWMutex
	store   Store
	runs    map[string]*RunSummary
	maxSize int
}

// NewRunHistoryProjection creates a projection over store keeping at most
// maxHistorySize runs.
func NewRunHistoryProjection(store Store, maxHistorySize int) *RunHistoryProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = 100
	}
	return &RunHistoryProjection{store: store, runs: map[string]*RunSummary{}, maxSize: maxHistorySize}
}

// Rebuild reconstructs the projection from all events in the store.
func (p *RunHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = map[string]*RunSummary{}
	for _, e := range events {
		p.applyLocked(e)
	}
	return nil
}

// Apply processes a single event.
func (p *RunHistoryProjection) Apply(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyLocked(e)
}

func (p *RunHistoryProjection) applyLocked(e Event) {
	runID := e.RunID()
	if runID == "" {
		return
	}
	s, ok := p.runs[runID]
	if !ok {
		s = &RunSummary{RunID: runID, Status: runStatusRunning, StartedAt: e.Timestamp()}
		p.runs[runID] = s
	}
	switch e.Type() {
	case TypeRunStarted:
		s.StartedAt = e.Timestamp()
	case TypeNodeWritten:
		var payload NodeWritten
		if json.Unmarshal(e.Payload(), &payload) == nil {
			s.WrittenNodes = append(s.WrittenNodes, payload.ALCN)
		}
	case TypeNodeFailed:
		var payload NodeFailed
		if json.Unmarshal(e.Payload(), &payload) == nil {
			s.FailedNodes = append(s.FailedNodes, payload.ALCN)
		}
	case TypeWebsiteGenerated:
		var payload WebsiteGenerated
		if json.Unmarshal(e.Payload(), &payload) == nil {
			s.Status = payload.Status
			s.Written = payload.Written
			s.Skipped = payload.Skipped
			s.Failed = payload.Failed
			s.CreationErrors = payload.CreationErrors
		}
		done := e.Timestamp()
		s.CompletedAt = &done
	}
	p.pruneLocked()
}

// pruneLocked drops the oldest completed runs beyond maxSize.
func (p *RunHistoryProjection) pruneLocked() {
	if len(p.runs) <= p.maxSize {
		return
	}
	history := p.historyLocked()
	for _, s := range history[p.maxSize:] {
		if s.Status != runStatusRunning {
			delete(p.runs, s.RunID)
		}
	}
}

func (p *RunHistoryProjection) historyLocked() []*RunSummary {
	out := make([]*RunSummary, 0, len(p.runs))
	for _, s := range p.runs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// History returns copies of the run summaries, newest first.
func (p *RunHistoryProjection) History() []RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []RunSummary
	for _, s := range p.historyLocked() {
		out = append(out, *s)
	}
	return out
}

// Run returns the summary of one run.
func (p *RunHistoryProjection) Run(runID string) (RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.runs[runID]
	if !ok {
		return RunSummary{}, false
	}
	return *s, true
}
