package eventstore

import (
	"context"
	"encoding/json"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// Event types written to the run journal.
const (
	TypeRunStarted         = "RunStarted"
	TypeNodeCreationFailed = "NodeCreationFailed"
	TypeNodeWritten        = "NodeWritten"
	TypeNodeFailed         = "NodeFailed"
	TypeWebsiteGenerated   = "WebsiteGenerated"
)

// Payload is the typed body of a journal event.
type Payload interface {
	EventType() string
}

// RunStarted is recorded when a run begins.
type RunStarted struct {
	Sources []string `json:"sources,omitempty"`
	Output  string   `json:"output"`
}

// NodeCreationFailed is recorded for a source path that produced no node.
type NodeCreationFailed struct {
	Path    string `json:"path"`
	Handler string `json:"handler"`
	Error   string `json:"error"`
}

// NodeWritten is recorded for every node whose destination was written.
type NodeWritten struct {
	ALCN       string `json:"alcn"`
	DestPath   string `json:"dest_path"`
	Handler    string `json:"handler"`
	DurationMS int64  `json:"duration_ms"`
}

// NodeFailed is recorded for a node whose rendering or writing failed.
type NodeFailed struct {
	ALCN    string `json:"alcn"`
	Handler string `json:"handler"`
	Error   string `json:"error"`
}

// WebsiteGenerated closes a run with its summary.
type WebsiteGenerated struct {
	Status         string `json:"status"`
	Written        int    `json:"written"`
	Skipped        int    `json:"skipped"`
	Failed         int    `json:"failed"`
	CreationErrors int    `json:"creation_errors"`
	DurationMS     int64  `json:"duration_ms"`
}

func (RunStarted) EventType() string         { return TypeRunStarted }
func (NodeCreationFailed) EventType() string { return TypeNodeCreationFailed }
func (NodeWritten) EventType() string        { return TypeNodeWritten }
func (NodeFailed) EventType() string         { return TypeNodeFailed }
func (WebsiteGenerated) EventType() string   { return TypeWebsiteGenerated }

// Journal appends typed payloads to a Store.
type Journal struct {
	store Store
}

// NewJournal creates a journal writing to store.
func NewJournal(store Store) *Journal {
	return &Journal{store: store}
}

// Store returns the underlying store.
func (j *Journal) Store() Store { return j.store }

// Record appends p for runID.
func (j *Journal) Record(ctx context.Context, runID string, p Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.JournalError("failed to marshal event payload").
			WithCause(err).
			WithContext("run_id", runID).
			WithContext("event_type", p.EventType()).
			Build()
	}
	return j.store.Append(ctx, runID, p.EventType(), data, nil)
}
