package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx := context.Background()
	ctx2, span := tracer.StartSpan(ctx, "test")
	if ctx2 != ctx {
		t.Fatalf("nop tracer should return same context")
	}
	span.SetTag("key", "value")
	span.SetError(nil)
	span.Finish()
}

func TestZerologLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(LogConfig{Level: "debug", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.With(String("session", "s1")).Error("close failed",
		Uint64("resource", 7),
		String("kind", "page"),
		Bool("forced", true),
		Error("error", errors.New("boom")),
	)

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	want := map[string]interface{}{
		"level":    "error",
		"message":  "close failed",
		"session":  "s1",
		"resource": float64(7),
		"kind":     "page",
		"forced":   true,
		"error":    "boom",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Fatalf("field %s = %v, want %v (line %s)", k, rec[k], v, buf.String())
		}
	}
}

func TestZerologLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(LogConfig{Level: "warn", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Debug("hidden")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %q", buf.String())
	}
	log.Warn("shown")
	if buf.Len() == 0 {
		t.Fatalf("expected warn line")
	}
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	if _, err := New(LogConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, err := New(LogConfig{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
