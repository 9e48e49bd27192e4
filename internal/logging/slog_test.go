package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestSlogLogger_Levels(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)

	out := buf.String()
	for _, want := range []string{
		"level=DEBUG msg=dbg a=1",
		"level=INFO msg=inf b=2",
		"level=WARN msg=wrn c=3",
		"level=ERROR msg=err d=4",
	} {
		assert.Contains(t, out, want)
	}
}

func TestSlogLogger_With_AddsAttributes(t *testing.T) {
	log, buf := newTestLogger(t)

	log.With("module", "auth", "user", "u-1").Info(context.Background(), "challenge issued", "ttl", "10m")

	out := buf.String()
	for _, want := range []string{"msg=\"challenge issued\"", "module=auth", "user=u-1", "ttl=10m"} {
		assert.Contains(t, out, want)
	}
}
