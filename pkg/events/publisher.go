package events

import "context"

// EventPublisher is the interface for publishing lifecycle events.
type EventPublisher interface {
	PublishPhase(ctx context.Context, event *PhaseEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (for hosts without COMMS).
type NoOpPublisher struct{}

// PublishPhase is a no-op.
func (p *NoOpPublisher) PublishPhase(_ context.Context, _ *PhaseEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *PhaseEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *PhaseEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishPhase calls the callback.
func (p *CallbackPublisher) PublishPhase(ctx context.Context, event *PhaseEvent) error {
	return p.callback(ctx, event)
}
