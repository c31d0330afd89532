package hooks_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Skryldev/image-convert/core"
	apperrors "github.com/Skryldev/image-convert/errors"
	"github.com/Skryldev/image-convert/hooks"
)

func TestMetricsHook(t *testing.T) {
	m := hooks.NewInMemoryMetrics()
	hook := hooks.NewMetricsHook(m)
	ctx := context.Background()

	hook.AfterStep(ctx, "encode", &core.ImageData{Meta: core.Metadata{SizeBytes: 512}}, 3*time.Millisecond, nil)
	hook.AfterStep(ctx, "decode", nil, time.Millisecond,
		apperrors.New(apperrors.CategoryDecode, "png.decode", errors.New("bad")))

	snap := m.Snapshot()
	if snap.StepCalls["encode"] != 1 || snap.StepCalls["decode"] != 1 {
		t.Errorf("step calls: %v", snap.StepCalls)
	}
	if snap.StepErrors["decode:decode"] != 1 {
		t.Errorf("step errors: %v", snap.StepErrors)
	}
	if snap.TotalThroughputB != 512 {
		t.Errorf("throughput: got %d, want 512", snap.TotalThroughputB)
	}
}

func TestLoggingHook_WritesStepRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := hooks.NewSlogLogger(hooks.NewSlog(&buf, "debug", "json"))
	hook := hooks.NewLoggingHook(logger)

	img := &core.ImageData{Format: core.FormatPNG, Meta: core.Metadata{Width: 10, Height: 20}}
	hook.BeforeStep(context.Background(), "decode", img)
	hook.AfterStep(context.Background(), "decode", img, time.Millisecond, nil)

	out := buf.String()
	for _, want := range []string{`"msg":"pipeline.step.start"`, `"msg":"pipeline.step.done"`, `"step":"decode"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := hooks.ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
