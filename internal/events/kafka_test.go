package events

import (
	"testing"
	"time"
)

func TestNewKafkaPublisher_FlushesSingleEventsPromptly(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "ride-events")
	defer p.Close()

	if got := p.writer.BatchTimeout; got <= 0 || got > 50*time.Millisecond {
		t.Errorf("expected a short batch timeout, got %v", got)
	}
	if p.writer.Topic != "ride-events" {
		t.Errorf("unexpected topic %q", p.writer.Topic)
	}
}
