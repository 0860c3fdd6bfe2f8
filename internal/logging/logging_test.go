package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestWithContextCarriesPassAndUnit(t *testing.T) {
	var buf bytes.Buffer
	InitWithHandler(slog.NewTextHandler(&buf, nil))

	ctx := ContextWithPassID(context.Background(), "pass-42")
	ctx = ContextWithUnit(ctx, "GT-1")

	WithContext(ctx, Component("orchestrator")).Info("unit refreshed")

	out := buf.String()
	for _, want := range []string{"component=orchestrator", "pass_id=pass-42", "unit=GT-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %q: %s", want, out)
		}
	}
}

func TestWithContextBareContext(t *testing.T) {
	var buf bytes.Buffer
	InitWithHandler(slog.NewTextHandler(&buf, nil))

	// No pass or unit in the context: the logger passes through untouched.
	WithContext(context.Background(), nil).Info("started")

	out := buf.String()
	if strings.Contains(out, "pass_id") || strings.Contains(out, "unit=") {
		t.Errorf("unexpected context attributes: %s", out)
	}
	if !strings.Contains(out, "msg=started") {
		t.Errorf("log line missing message: %s", out)
	}
}
