package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/levenlabs/go-llog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextLogger(t *testing.T) {
	ctx := context.Background()

	l1 := Ctx(ctx)
	require.NotNil(t, l1, "Ctx returned nil instead of default logger")
	assert.Equal(t, defaultLogger, l1, "Ctx should return defaultLogger")
	assert.Equal(t, defaultLogger, Default())

	customLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	require.NotEqual(t, defaultLogger, customLogger, "Failed to create a distinct custom logger for testing")

	ctxWithLogger := With(ctx, customLogger)
	l2 := Ctx(ctxWithLogger)
	require.NotNil(t, l2, "Ctx returned nil, expected custom logger")
	assert.Equal(t, customLogger, l2, "Ctx should return customLogger")
}

func TestWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	ctx := With(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))
	ctx = WithAttrs(ctx, slog.String("category", "DOMESTIC"))

	Ctx(ctx).InfoContext(ctx, "rate computed", slog.Float64("rate", 6.64))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "DOMESTIC", rec["category"])
	assert.Equal(t, 6.64, rec["rate"])
	assert.Equal(t, "rate computed", rec["msg"])
}

func TestLevelFromLLog(t *testing.T) {
	for in, want := range map[llog.Level]slog.Level{
		llog.DebugLevel: slog.LevelDebug,
		llog.InfoLevel:  slog.LevelInfo,
		llog.WarnLevel:  slog.LevelWarn,
		llog.ErrorLevel: slog.LevelError,
	} {
		got, err := LevelFromLLog(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
