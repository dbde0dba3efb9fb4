// Package notify publishes run summaries to NATS when a website was
// generated.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/retry"
	"git.home.luguber.info/inful/sitebuilder/internal/website"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "sitebuilder.website.generated"

// Summary is the JSON message published for every run.
type Summary struct {
	Site           string    `json:"site,omitempty"`
	RunID          string    `json:"run_id"`
	Status         string    `json:"status"`
	Written        []string  `json:"written,omitempty"`
	Failed         []string  `json:"failed,omitempty"`
	Skipped        int       `json:"skipped"`
	CreationErrors int       `json:"creation_errors"`
	DurationMS     int64     `json:"duration_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewSummary summarizes res.
func NewSummary(site string, res *website.Result) Summary {
	s := Summary{
		Site:           site,
		RunID:          res.RunID,
		Status:         string(res.Status),
		Written:        res.Written,
		Skipped:        len(res.Skipped),
		CreationErrors: len(res.CreationErrors),
		DurationMS:     res.Duration.Milliseconds(),
		Timestamp:      res.EndTime,
	}
	for _, f := range res.Failed {
		s.Failed = append(s.Failed, f.ALCN)
	}
	return s
}

// Publisher delivers a message to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Notifier publishes a Summary on every website_generated hook.
type Notifier struct {
	pub     Publisher
	subject string
	site    string
	timeout time.Duration
	retry   retry.Policy
	logger  *slog.Logger
}

// NewNotifier creates a notifier publishing to subject through pub.
func NewNotifier(pub Publisher, subject, site string) *Notifier {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Notifier{
		pub:     pub,
		subject: subject,
		site:    site,
		timeout: 5 * time.Second,
		retry:   retry.NewPolicy(retry.BackoffLinear, 0, 0, 0),
		logger:  slog.Default(),
	}
}

// WithRetry retries failed publishes with p within the publish timeout.
func (n *Notifier) WithRetry(p retry.Policy) *Notifier {
	n.retry = p
	return n
}

// WithLogger sets a custom logger.
func (n *Notifier) WithLogger(logger *slog.Logger) *Notifier {
	n.logger = logger
	return n
}

// Notify publishes the summary of res.
func (n *Notifier) Notify(ctx context.Context, res *website.Result) error {
	data, err := json.Marshal(NewSummary(n.site, res))
	if err != nil {
		return errors.NotifyError("failed to marshal run summary").WithCause(err).Build()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()
	err = n.retry.Do(ctx, func(ctx context.Context) error {
		return n.pub.Publish(ctx, n.subject, data)
	})
	if err != nil {
		return errors.NotifyError("failed to publish run summary").
			WithCause(err).
			WithContext("subject", n.subject).
			WithContext("run_id", res.RunID).
			Build()
	}
	n.logger.Debug("Published run summary", logfields.RunID(res.RunID), slog.String("subject", n.subject))
	return nil
}

// Subscribe attaches the notifier to the website_generated hook. Publish
// failures are logged and never fail the run.
func (n *Notifier) Subscribe(h *website.Hooks) {
	h.On(website.HookWebsiteGenerated, func(ctx context.Context, ev *website.HookEvent) {
		if ev.Result == nil {
			return
		}
		if err := n.Notify(ctx, ev.Result); err != nil {
			n.logger.Warn("Run notification failed", logfields.RunID(ev.RunID), logfields.Error(err))
		}
	})
}
