package events

import (
	"context"
	"testing"
)

func TestNoOpPublisher(t *testing.T) {
	pub := &NoOpPublisher{}
	err := pub.PublishPhase(context.Background(), &PhaseEvent{Host: "h", Phase: "init", Outcome: OutcomeCompleted})
	if err != nil {
		t.Errorf("events:publisher_test - expected no error, got %v", err)
	}
}

func TestCallbackPublisher(t *testing.T) {
	var captured *PhaseEvent

	pub := NewCallbackPublisher(func(_ context.Context, event *PhaseEvent) error {
		captured = event
		return nil
	})

	err := pub.PublishPhase(context.Background(), &PhaseEvent{
		Host:     "h",
		Phase:    "config",
		Outcome:  OutcomeFailed,
		Failures: []string{"HelloService"},
	})
	if err != nil {
		t.Errorf("events:publisher_test - expected no error, got %v", err)
	}
	if captured == nil {
		t.Fatal("events:publisher_test - expected callback to be called")
	}
	if captured.Outcome != OutcomeFailed || len(captured.Failures) != 1 {
		t.Errorf("events:publisher_test - unexpected event %+v", captured)
	}
}
