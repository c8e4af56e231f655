// Package events defines lifecycle event types and publisher interfaces.
package events

// Lifecycle phase outcomes.
const (
	OutcomeStarted   = "started"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// PhaseEvent is emitted when a host starts, completes or fails a lifecycle
// phase.
type PhaseEvent struct {
	Host       string   `json:"host"`
	Phase      string   `json:"phase"`
	Outcome    string   `json:"outcome"`
	Services   int      `json:"services"`
	Failures   []string `json:"failures,omitempty"`
	Error      string   `json:"error,omitempty"`
	DurationMs int64    `json:"durationMs"`
	Timestamp  string   `json:"timestamp"`
}
