package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := WithStage(WithRunID(context.Background(), "run-1"), "build")
	lc := GetContext(ctx)
	assert.Equal(t, "run-1", lc.RunID)
	assert.Equal(t, "build", lc.Stage)

	ctx = WithStage(ctx, "write")
	assert.Equal(t, "write", GetContext(ctx).Stage)
	assert.Equal(t, "run-1", GetContext(ctx).RunID)
}

func TestInfoContextPrependsRunAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := WithStage(WithRunID(context.Background(), "run-7"), "write")

	InfoContext(ctx, logger, "Node written", slog.String("alcn", "/index.en.html"))
	out := buf.String()
	assert.Contains(t, out, "run_id=run-7")
	assert.Contains(t, out, "stage=write")
	assert.Contains(t, out, "alcn=/index.en.html")
}

func TestLogWithoutContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	WarnContext(context.Background(), logger, "plain")
	assert.Contains(t, buf.String(), "msg=plain")
	assert.NotContains(t, buf.String(), "run_id")
}
