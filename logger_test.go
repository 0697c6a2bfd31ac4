package pagefault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})).
		WithRunID("run-1").
		WithFile("/data/source.bin")

	l.LogSetup(context.Background(), Geometry{Size: 2 << 20, PageSize: 4096, PageCount: 512}, Serial, true)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "run-1", rec["run_id"])
	assert.Equal(t, "/data/source.bin", rec["file"])
	assert.Equal(t, "2.0 MiB", rec["size"])
	assert.Equal(t, float64(512), rec["pages"])
	assert.Equal(t, "serial", rec["discipline"])
}

func TestLogger_LogReport(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.NewTextHandler(&buf, nil))
	r := Report{Iterations: 2, PageCount: 512, Combined: 3 * time.Millisecond, Baseline: time.Millisecond}

	l.LogReport(context.Background(), r, nil)
	assert.Contains(t, buf.String(), "measurement completed")

	buf.Reset()
	l.LogReport(context.Background(), r, errors.New("noisy"))
	assert.Contains(t, buf.String(), "measurement rejected")
	assert.Contains(t, buf.String(), "noisy")
}

func TestNoopLogger(t *testing.T) {
	l := NoopLogger()
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
}
