package watch

import (
	"context"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// DebouncerConfig tunes a Debouncer.
type DebouncerConfig struct {
	// QuietWindow is how long no request must arrive before firing.
	QuietWindow time.Duration
	// MaxDelay bounds how long a burst can postpone firing.
	MaxDelay time.Duration
}

// Debouncer coalesces bursts of requests into a single call of fire.
type Debouncer struct {
	cfg      DebouncerConfig
	fire     func(reason string)
	requests chan string

	mu      sync.Mutex
	count   int
	last    string
	pending bool
}

// NewDebouncer returns a Debouncer calling fire with the last reason of
// every burst.
func NewDebouncer(cfg DebouncerConfig, fire func(reason string)) (*Debouncer, error) {
	if fire == nil {
		return nil, ferrors.ValidationError("fire callback is required").Build()
	}
	if cfg.QuietWindow < 0 {
		return nil, ferrors.ValidationError("quiet window must be >= 0").Build()
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * cfg.QuietWindow
	}
	return &Debouncer{cfg: cfg, fire: fire, requests: make(chan string, 64)}, nil
}

// Request records a change. It does not block.
func (d *Debouncer) Request(reason string) {
	select {
	case d.requests <- reason:
	default:
		d.mu.Lock()
		d.last = reason
		d.mu.Unlock()
	}
}

// Run handles requests until ctx is done.
func (d *Debouncer) Run(ctx context.Context) {
	if d.cfg.QuietWindow == 0 {
		for {
			select {
			case <-ctx.Done():
				return
			case reason := <-d.requests:
				d.fire(reason)
			}
		}
	}

	quietTimer := stoppedTimer()
	maxTimer := stoppedTimer()
	var quietC, maxC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			quietTimer.Stop()
			maxTimer.Stop()
			return
		case reason := <-d.requests:
			first := d.onRequest(reason)
			resetTimer(quietTimer, d.cfg.QuietWindow)
			quietC = quietTimer.C
			if first {
				resetTimer(maxTimer, d.cfg.MaxDelay)
				maxC = maxTimer.C
			}
		case <-quietC:
			d.emit()
			quietC, maxC = nil, nil
			maxTimer.Stop()
		case <-maxC:
			d.emit()
			quietC, maxC = nil, nil
			quietTimer.Stop()
		}
	}
}

func (d *Debouncer) onRequest(reason string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	first := !d.pending
	d.pending = true
	d.count++
	d.last = reason
	return first
}

func (d *Debouncer) emit() {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return
	}
	reason := d.last
	d.pending = false
	d.count = 0
	d.mu.Unlock()
	d.fire(reason)
}

func stoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}

func resetTimer(t *time.Timer, after time.Duration) {
	t.Stop()
	t.Reset(after)
}
