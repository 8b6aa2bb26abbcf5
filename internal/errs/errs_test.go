package errs

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestWrapPreservesChain(t *testing.T) {
	base := errors.New("summary not found")
	wrapped := Wrapf(Wrap(base, "load summary"), "recompute %s", "Products")

	if !errors.Is(wrapped, base) {
		t.Fatalf("errors.Is(wrapped, base) = false")
	}
	if got := wrapped.Error(); got != "recompute Products: load summary: summary not found" {
		t.Fatalf("Error() = %q", got)
	}
	if Wrap(nil, "noop") != nil || Wrapf(nil, "noop %d", 1) != nil {
		t.Fatalf("wrapping nil should return nil")
	}
}

func TestRootCause(t *testing.T) {
	base := errors.New("disk full")
	err := Wrap(WithStack(Wrap(base, "insert log")), "append log")

	if got := RootCause(err); got != base {
		t.Fatalf("RootCause() = %v, want %v", got, base)
	}
	if RootCause(nil) != nil {
		t.Fatalf("RootCause(nil) should be nil")
	}
}

func TestWithStackCapturesOnce(t *testing.T) {
	first := WithStack(errors.New("boom"))
	second := WithStack(Wrap(first, "outer"))

	var se *StackError
	if !errors.As(second, &se) {
		t.Fatalf("expected StackError in chain")
	}
	if len(se.Stack()) == 0 {
		t.Fatalf("stack should not be empty")
	}
	if _, ok := second.(*StackError); ok {
		t.Fatalf("WithStack should not double wrap an error that already has a stack")
	}
}

func TestLoggableGroup(t *testing.T) {
	value := Loggable(Wrap(errors.New("locked"), "acquire")).LogValue()
	if value.Kind() != slog.KindGroup {
		t.Fatalf("kind = %v, want group", value.Kind())
	}

	keys := make([]string, 0, 4)
	for _, attr := range value.Group() {
		keys = append(keys, attr.Key)
	}
	joined := strings.Join(keys, ",")
	if joined != "message,chain,root" {
		t.Fatalf("keys = %s", joined)
	}
}
