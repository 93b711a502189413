package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/bdobrica/Lugha/common/trace"
)

func TestRedactingHandler_MessageAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	secret := "EAAG-super-secret-token"
	log := slog.New(NewHandler(&buf, "debug", "text", secret))

	log.Info("calling with "+secret,
		"header", "Bearer "+secret,
		"err", errors.New("401 for token "+secret),
		slog.Group("req", "auth", secret),
	)
	log.With("token", secret).Debug("child logger")

	out := buf.String()
	if strings.Contains(out, secret) {
		t.Fatalf("secret leaked into log output:\n%s", out)
	}
	if c := strings.Count(out, "[REDACTED]"); c < 5 {
		t.Errorf("expected at least 5 redactions, got %d:\n%s", c, out)
	}
}

func TestRedactString_SkipsShortValues(t *testing.T) {
	if got := RedactString("abc def", "abc"); got != "abc def" {
		t.Errorf("short values must not be redacted, got %q", got)
	}
	if got := RedactString("key=abcd1234", "abcd1234"); got != "key=[REDACTED]" {
		t.Errorf("unexpected redaction %q", got)
	}
}

func TestNewHandler_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, "warn", "json"))
	log.Info("hidden")
	log.Warn("shown", "n", 1)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("expected json output, got %s", out)
	}
}

func TestWithTrace(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(NewHandler(&buf, "info", "text")))
	defer slog.SetDefault(prev)

	ctx := trace.WithTraceID(context.Background(), "t_abc")
	WithTrace(ctx).Info("hello")
	if !strings.Contains(buf.String(), "trace_id=t_abc") {
		t.Errorf("expected trace_id attribute, got %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"debug": slog.LevelDebug, "warn": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo, "loud": slog.LevelInfo}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
