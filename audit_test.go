package logauth

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEngineEmitsAuditEvents(t *testing.T) {
	sink := NewChannelSink(64)

	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64

	_, client := newTestRedis(t)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountStore(newFakeStore()).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := WithClientIP(context.Background(), "203.0.113.9")
	ctx = WithUserAgent(ctx, "test-agent")

	if _, err := engine.Register(ctx, RegisterInput{
		Email:    "alice@example.com",
		Password: "correct-password-123",
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	engine.Login(ctx, "alice@example.com", "wrong-password-456")
	if _, err := engine.Login(ctx, "alice@example.com", "correct-password-123"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	want := map[string]bool{
		EventRegister:     false,
		EventLoginFailure: false,
		EventLoginSuccess: false,
	}
	deadline := time.After(2 * time.Second)
	for {
		remaining := 0
		for _, seen := range want {
			if !seen {
				remaining++
			}
		}
		if remaining == 0 {
			break
		}

		select {
		case event := <-sink.Events():
			if _, tracked := want[event.EventType]; tracked {
				want[event.EventType] = true
			}
			if event.IP != "203.0.113.9" || event.UserAgent != "test-agent" {
				t.Fatalf("event missing request context: %+v", event)
			}
			if event.Timestamp.IsZero() {
				t.Fatalf("event missing timestamp: %+v", event)
			}
			if event.EventType == EventLoginFailure && event.Success {
				t.Fatalf("failure event marked success: %+v", event)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for events, seen: %v", want)
		}
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now(),
		EventType: EventLoginSuccess,
		AccountID: "id-1",
		Success:   true,
	})
	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now(),
		EventType: EventLoginFailure,
		Email:     "alice@example.com",
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	var first AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line not valid JSON: %v", err)
	}
	if first.EventType != EventLoginSuccess || first.AccountID != "id-1" {
		t.Fatalf("unexpected event: %+v", first)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	sink := sinkFunc(func(context.Context, AuditEvent) { <-block })

	d := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink)

	// First event occupies the worker, second fills the buffer, the rest drop.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: EventLogout})
	}

	if d.Dropped() == 0 {
		t.Fatal("expected drops with a full buffer")
	}

	close(block)
	d.Close()
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	delivered := make(chan struct{}, 16)
	sink := sinkFunc(func(context.Context, AuditEvent) { delivered <- struct{}{} })

	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16}, sink)
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: EventLogout})
	}
	d.Close()

	if got := len(delivered); got != 5 {
		t.Fatalf("expected 5 delivered events, got %d", got)
	}
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled audit must yield a nil dispatcher")
	}

	// nil dispatcher accepts everything
	d.Emit(context.Background(), AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reports zero drops")
	}
}

type sinkFunc func(context.Context, AuditEvent)

func (f sinkFunc) Emit(ctx context.Context, event AuditEvent) { f(ctx, event) }
