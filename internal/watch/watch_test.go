package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/website"
)

type fakeRenderer struct {
	calls   atomic.Int32
	active  atomic.Int32
	overlap atomic.Bool
	delay   time.Duration
	err     error
}

func (f *fakeRenderer) Render(ctx context.Context) (*website.Result, error) {
	if f.active.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.active.Add(-1)
	n := f.calls.Add(1)
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return &website.Result{Status: website.StatusCanceled}, ctx.Err()
	}
	if f.err != nil {
		return &website.Result{Status: website.StatusFailed}, f.err
	}
	return &website.Result{RunID: "run-" + string(rune('0'+n)), Status: website.StatusSuccess}, nil
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	var mu sync.Mutex
	var fired []string
	d, err := NewDebouncer(DebouncerConfig{QuietWindow: 30 * time.Millisecond, MaxDelay: time.Second}, func(reason string) {
		mu.Lock()
		fired = append(fired, reason)
		mu.Unlock()
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	for _, r := range []string{"a", "b", "c"} {
		d.Request(r)
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"c"}, fired)
}

func TestDebouncer_MaxDelayBoundsBurst(t *testing.T) {
	var count atomic.Int32
	d, err := NewDebouncer(DebouncerConfig{QuietWindow: 50 * time.Millisecond, MaxDelay: 80 * time.Millisecond}, func(string) {
		count.Add(1)
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		d.Request("tick")
		time.Sleep(10 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, count.Load(), int32(1))
}

func TestDebouncer_RequiresCallback(t *testing.T) {
	_, err := NewDebouncer(DebouncerConfig{}, nil)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}

func TestBuilder_PendingRequestsCollapse(t *testing.T) {
	r := &fakeRenderer{delay: 50 * time.Millisecond}
	b := NewBuilder(r, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	require.True(t, b.Trigger("first"))
	require.Eventually(t, b.Running, time.Second, time.Millisecond)
	assert.True(t, b.Trigger("second"))
	assert.False(t, b.Trigger("third"))

	require.Eventually(t, func() bool { return r.calls.Load() == 2 && !b.Running() }, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(2), r.calls.Load())
	assert.False(t, r.overlap.Load())
	require.NotNil(t, b.Last())
	assert.Equal(t, website.StatusSuccess, b.Last().Status)
}

func TestBuilder_ReportsErrors(t *testing.T) {
	r := &fakeRenderer{err: errors.New("boom")}
	b := NewBuilder(r, nil)
	got := make(chan error, 1)
	b.OnResult(func(_ *website.Result, err error) { got <- err })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)
	b.Trigger("test")

	select {
	case err := <-got:
		assert.EqualError(t, err, "boom")
	case <-time.After(time.Second):
		t.Fatal("no result reported")
	}
}

func TestFSWatcher_ReportsChangesAndSkipsExcludes(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "out")
	require.NoError(t, os.MkdirAll(out, 0o750))

	changes := make(chan string, 16)
	fw, err := NewFSWatcher([]string{root}, []string{out}, func(p string) { changes <- p })
	require.NoError(t, err)
	require.NoError(t, fw.Start())
	defer func() { _ = fw.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fw.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(out, "index.html"), []byte("x"), 0o600))
	sub := filepath.Join(root, "docs")
	require.NoError(t, os.Mkdir(sub, 0o750))
	waitFor(t, changes, sub)

	page := filepath.Join(sub, "page.md")
	require.NoError(t, os.WriteFile(page, []byte("# Page"), 0o600))
	waitFor(t, changes, page)
}

func waitFor(t *testing.T, changes <-chan string, want string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case p := <-changes:
			require.NotContains(t, p, string(filepath.Separator)+"out"+string(filepath.Separator))
			if p == want {
				return
			}
		case <-timeout:
			t.Fatalf("no change reported for %s", want)
		}
	}
}

func TestService_BuildsOnStartupAndChange(t *testing.T) {
	root := t.TempDir()
	r := &fakeRenderer{}
	svc := NewService(r, Options{Roots: []string{root}, Debounce: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.md"), []byte("hi"), 0o600))
	require.Eventually(t, func() bool { return r.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestService_RejectsEmptyRoots(t *testing.T) {
	err := NewService(&fakeRenderer{}, Options{}, nil).Run(context.Background())
	assert.ErrorIs(t, err, ErrNoRoots)
}
