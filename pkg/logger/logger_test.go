package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	return out
}

func withSampledSpan(ctx context.Context) context.Context {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	return trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
}

func TestWithContext(t *testing.T) {
	tests := []struct {
		name   string
		ctx    context.Context
		want   map[string]string
		absent []string
	}{
		{
			name:   "empty context",
			ctx:    context.Background(),
			absent: []string{"correlation_id", "user_id", "session_id", "trace_id", "span_id"},
		},
		{
			name: "correlation id",
			ctx:  WithCorrelationID(context.Background(), "req-123"),
			want: map[string]string{"correlation_id": "req-123"},
		},
		{
			name:   "registered shopper",
			ctx:    WithUserID(context.Background(), "user-42"),
			want:   map[string]string{"user_id": "user-42"},
			absent: []string{"session_id"},
		},
		{
			name:   "anonymous shopper",
			ctx:    WithSessionID(context.Background(), "sess-abc"),
			want:   map[string]string{"session_id": "sess-abc"},
			absent: []string{"user_id"},
		},
		{
			name: "span",
			ctx:  withSampledSpan(context.Background()),
			want: map[string]string{
				"trace_id": "4bf92f3577b34da6a3ce929d0e0e4736",
				"span_id":  "00f067aa0ba902b7",
			},
		},
		{
			name: "everything",
			ctx:  withSampledSpan(WithUserID(WithCorrelationID(context.Background(), "corr-9"), "user-1")),
			want: map[string]string{
				"correlation_id": "corr-9",
				"user_id":        "user-1",
				"trace_id":       "4bf92f3577b34da6a3ce929d0e0e4736",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			WithContext(tt.ctx, NewWithWriter("cart-service", "info", &buf)).Info("line")
			out := decodeLine(t, &buf)

			for k, v := range tt.want {
				if got := out[k]; got != v {
					t.Errorf("%s = %v, want %q", k, got, v)
				}
			}
			for _, k := range tt.absent {
				if _, ok := out[k]; ok {
					t.Errorf("%s present, want absent", k)
				}
			}
		})
	}
}

func TestWithContext_ReturnsSameLoggerWhenNothingToAdd(t *testing.T) {
	l := NewWithWriter("cart-service", "info", &bytes.Buffer{})
	if got := WithContext(context.Background(), l); got != l {
		t.Error("expected the base logger back for an empty context")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWithWriter_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("cart-service", "warn", &buf)

	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info line written at warn level: %s", buf.String())
	}

	l.Warn("kept")
	if got := decodeLine(t, &buf)["service"]; got != "cart-service" {
		t.Errorf("service = %v, want %q", got, "cart-service")
	}
}

func TestNewWithWriter_SourceOnlyAtDebug(t *testing.T) {
	var info, debug bytes.Buffer
	NewWithWriter("cart-service", "info", &info).Info("x")
	NewWithWriter("cart-service", "debug", &debug).Info("x")

	if _, ok := decodeLine(t, &info)["source"]; ok {
		t.Error("source recorded at info level")
	}
	if _, ok := decodeLine(t, &debug)["source"]; !ok {
		t.Error("source missing at debug level")
	}
}

func TestFromContext(t *testing.T) {
	l := NewWithWriter("cart-service", "info", &bytes.Buffer{})
	if got := FromContext(NewContext(context.Background(), l)); got != l {
		t.Error("FromContext should return the logger stored via NewContext")
	}
	if got := FromContext(context.Background()); got != slog.Default() {
		t.Error("FromContext should fall back to slog.Default")
	}
}
