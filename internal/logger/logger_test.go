package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Strob0t/forgetop/internal/config"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forgetop.log")
	cfg := config.Logging{Level: "debug", Service: "test-svc", File: path}
	l, closer, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("hello")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"service":"test-svc"`) {
		t.Fatalf("expected service attribute in %q", data)
	}
}

func TestNewBadFile(t *testing.T) {
	cfg := config.Logging{File: filepath.Join(t.TempDir(), "missing", "x.log")}
	if _, _, err := New(cfg); err == nil {
		t.Fatal("expected error for unwritable log path")
	}
}

func TestNewAsync(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Logging{Level: "debug", Service: "test-svc", Async: true}
	l, closer := NewWithWriter(cfg, &buf)
	l.Debug("queued")
	closer.Close()

	if !strings.Contains(buf.String(), "queued") {
		t.Fatalf("expected async record flushed on close, got %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.Logging{Level: "warn"}, &buf)
	defer closer.Close()

	l.Info("hidden")
	l.Warn("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input).String()
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestContextIDs(t *testing.T) {
	ctx := context.Background()

	if RequestID(ctx) != "" || AgentID(ctx) != "" || IntentID(ctx) != "" {
		t.Fatal("expected empty IDs on a bare context")
	}

	ctx = WithRequestID(ctx, "req-123")
	ctx = WithAgentID(ctx, "a1")
	ctx = WithIntentID(ctx, "i-9")
	if RequestID(ctx) != "req-123" || AgentID(ctx) != "a1" || IntentID(ctx) != "i-9" {
		t.Fatalf("unexpected IDs %q %q %q", RequestID(ctx), AgentID(ctx), IntentID(ctx))
	}
}

func TestContextIDsAreLogged(t *testing.T) {
	for _, async := range []bool{false, true} {
		var buf bytes.Buffer
		l, closer := NewWithWriter(config.Logging{Service: "svc", Async: async}, &buf)

		ctx := WithIntentID(WithAgentID(context.Background(), "a1"), "i-9")
		l.InfoContext(ctx, "control sent")
		closer.Close()

		var line map[string]any
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("async=%v: decode %q: %v", async, buf.String(), err)
		}
		if line["agent_id"] != "a1" || line["intent_id"] != "i-9" {
			t.Fatalf("async=%v: missing context attrs in %v", async, line)
		}
	}
}
