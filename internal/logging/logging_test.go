package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn)
	logger.Info("dropped")
	logger.Warn("kept", "booking_id", "b1")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected a single JSON record, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "kept" || record["app"] != ServiceName || record["booking_id"] != "b1" {
		t.Fatalf("unexpected record: %v", record)
	}
}

func TestFromContextOr(t *testing.T) {
	t.Parallel()

	fallback := slog.New(slog.NewTextHandler(io.Discard, nil))
	scoped := slog.New(slog.NewTextHandler(io.Discard, nil))

	if got := FromContextOr(context.Background(), fallback); got != fallback {
		t.Fatalf("expected fallback logger without a scoped one")
	}
	ctx := ContextWithLogger(context.Background(), scoped)
	if got := FromContextOr(ctx, fallback); got != scoped {
		t.Fatalf("expected scoped logger to win")
	}
	if got := FromContextOr(context.Background(), nil); got != slog.Default() {
		t.Fatalf("expected slog.Default as last resort")
	}
	if ContextWithLogger(ctx, nil) != ctx {
		t.Fatalf("expected nil logger to leave the context untouched")
	}
}
