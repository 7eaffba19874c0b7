package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rescale-labs/termscp/internal/events"
)

func TestInfofWritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, nil)
	l.Infof("hello %s", "world")
	if !strings.Contains(buf.String(), "hello world") {
		t.Errorf("expected log output to contain message, got %q", buf.String())
	}
}

func TestErrorfPublishesToEventBus(t *testing.T) {
	var buf bytes.Buffer
	bus := events.NewEventBus(0)
	ch := bus.Subscribe(events.EventLog)
	l := New(&buf, bus)
	l.Errorf("boom")

	select {
	case ev := <-ch:
		le, ok := ev.(*events.LogEvent)
		if !ok {
			t.Fatalf("expected *LogEvent, got %T", ev)
		}
		if le.Message != "boom" || le.Level != events.ErrorLevel {
			t.Errorf("unexpected event: %+v", le)
		}
	default:
		t.Fatal("expected a published LogEvent")
	}
}

func TestNilEventBusDoesNotPanic(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, nil)
	l.Debugf("fine")
	l.Warnf("also fine")
}
