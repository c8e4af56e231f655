// Package lifecycle registers a host's services into a service cache and
// drives them through the configure, initialize and run phases.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
)

// State is the orchestrator's position in the startup sequence.
type State int

const (
	StateIdle State = iota
	StateRegistering
	StateConfiguring
	StateInitializing
	StateRunning
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRegistering:
		return "registering"
	case StateConfiguring:
		return "configuring"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Phase names a lifecycle phase.
type Phase string

const (
	PhaseRegister Phase = "register"
	PhaseConfig   Phase = "config"
	PhaseInit     Phase = "init"
	PhaseRun      Phase = "run"
)

// Phase outcomes recorded in Status.
const (
	OutcomePending   = "pending"
	OutcomeRunning   = "running"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

var (
	// ErrPhaseOrder is returned when a phase is started out of sequence or
	// a second time.
	ErrPhaseOrder = errors.New("lifecycle phase out of order")
	// ErrPhaseFailed is returned when the preceding phase failed.
	ErrPhaseFailed = errors.New("preceding lifecycle phase failed")
	// ErrNoServiceCache is returned when no service cache has been set.
	ErrNoServiceCache = errors.New("service cache was not set")
	// ErrLogNotSet is returned by Log before the log service is resolved.
	ErrLogNotSet = errors.New("MainService's log was not set yet")
)

// Config is the configuration handed to every Configurable service.
type Config map[string]any

// Section returns the nested configuration stored under name, or an empty
// Config.
func (c Config) Section(name string) Config {
	switch v := c[name].(type) {
	case Config:
		return v
	case map[string]any:
		return Config(v)
	}
	return Config{}
}

// Configurable services receive the host configuration before init.
type Configurable interface {
	OnConfig(ctx context.Context, cfg Config) error
}

// Initializer services are initialized after every service is configured.
type Initializer interface {
	OnInit(ctx context.Context) error
}

// Runner services are notified once every service is initialized.
type Runner interface {
	OnRun(ctx context.Context) error
}

// ServiceCache is the storage services are registered into.
type ServiceCache interface {
	Register(ctx context.Context, serviceOrCtor any) (string, error)
	Get(ctx context.Context, idOrName string) (any, error)
	GetUUIDs(ctx context.Context) ([]string, error)
}

// Logger is the subset of a log service the orchestrator writes to.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// PhaseError reports a failed phase, naming the first service whose hook
// failed.
type PhaseError struct {
	Phase   Phase  `json:"phase"`
	Service string `json:"service"`
	UUID    string `json:"uuid"`
	Err     error  `json:"-"`
}

func (e *PhaseError) Error() string {
	if e.Service == "" {
		return fmt.Sprintf("%s phase failed: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("%s phase failed for %s (%s): %v", e.Phase, e.Service, e.UUID, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// PhaseStatus records how a phase went.
type PhaseStatus struct {
	Outcome    string   `json:"outcome"`
	Error      string   `json:"error,omitempty"`
	Failures   []string `json:"failures,omitempty"`
	DurationMs int64    `json:"durationMs"`
}

// Status is a snapshot of the orchestrator.
type Status struct {
	State            string                `json:"state"`
	Services         int                   `json:"services"`
	FirstServiceUUID string                `json:"firstServiceUuid,omitempty"`
	Phases           map[Phase]PhaseStatus `json:"phases"`
}
