package events

import (
	"context"
	"testing"

	"reliability/internal/ports"
)

func TestSubject(t *testing.T) {
	cases := map[string]string{
		"":              "log.appended",
		"reliability":   "reliability.log.appended",
		" reliability.": "reliability.log.appended",
		"acme.products": "acme.products.log.appended",
	}
	for prefix, want := range cases {
		if got := Subject(prefix); got != want {
			t.Fatalf("Subject(%q) = %q, want %q", prefix, got, want)
		}
	}
}

func TestNoopPublisher(t *testing.T) {
	if err := (Noop{}).PublishLogAppended(context.Background(), ports.LogAppendedEvent{LogID: "x"}); err != nil {
		t.Fatalf("Noop.PublishLogAppended() error = %v", err)
	}
}

func TestConnectFailsFast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Connect(ctx, "nats://127.0.0.1:1", "reliability"); err == nil {
		t.Fatalf("Connect() with cancelled context expected error")
	}
}
