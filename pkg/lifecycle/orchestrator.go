package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/morezero/service-host/pkg/events"
	"github.com/morezero/service-host/pkg/introspect"
	"github.com/morezero/service-host/pkg/metrics"
	"github.com/morezero/service-host/pkg/servicecache"
)

const logPrefix = "lifecycle:orchestrator"

// Names the orchestrator looks up after registration.
const (
	LogServiceName     = "LogService"
	RequestServiceName = "RequestService"
)

var previousPhase = map[Phase]Phase{
	PhaseConfig: PhaseRegister,
	PhaseInit:   PhaseConfig,
	PhaseRun:    PhaseInit,
}

// Orchestrator registers services and sequences their lifecycle phases.
// It registers itself into the cache as "MainService".
type Orchestrator struct {
	host      string
	publisher events.EventPublisher
	metrics   *metrics.Metrics

	mu               sync.RWMutex
	cache            ServiceCache
	builtIn          []any
	user             []any
	firstServiceUUID string
	log              Logger
	request          any
	state            State
	services         int
	phases           map[Phase]*PhaseStatus
}

// NewOrchestratorParams holds parameters for NewOrchestrator.
type NewOrchestratorParams struct {
	// Host names this process in lifecycle events.
	Host      string
	Publisher events.EventPublisher
	Metrics   *metrics.Metrics
}

// NewOrchestrator creates an idle Orchestrator.
func NewOrchestrator(params NewOrchestratorParams) *Orchestrator {
	publisher := params.Publisher
	if publisher == nil {
		publisher = &events.NoOpPublisher{}
	}
	o := &Orchestrator{
		host:      params.Host,
		publisher: publisher,
		metrics:   params.Metrics,
		phases:    make(map[Phase]*PhaseStatus),
	}
	for _, p := range []Phase{PhaseRegister, PhaseConfig, PhaseInit, PhaseRun} {
		o.phases[p] = &PhaseStatus{Outcome: OutcomePending}
	}
	return o
}

// ServiceName registers the orchestrator as MainService.
func (o *Orchestrator) ServiceName() string {
	return "MainService"
}

// SetBuiltInServices sets the framework services registered before user
// services. Each entry is an instance or a constructor.
func (o *Orchestrator) SetBuiltInServices(services ...any) *Orchestrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.builtIn = append([]any(nil), services...)
	return o
}

// SetUserServices sets the application services. The first one is the
// primary service.
func (o *Orchestrator) SetUserServices(services ...any) *Orchestrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.user = append([]any(nil), services...)
	return o
}

// SetServiceCache sets the cache from an instance or from a constructor
// returning one.
func (o *Orchestrator) SetServiceCache(cacheOrCtor any) error {
	cache, ok := cacheOrCtor.(ServiceCache)
	if !ok && introspect.IsInvocable(cacheOrCtor) {
		result, _, err := introspect.Invoke(context.Background(), cacheOrCtor)
		if err != nil {
			return fmt.Errorf("%s - service cache constructor failed: %w", logPrefix, err)
		}
		cache, ok = result.(ServiceCache)
	}
	if !ok || cache == nil {
		return fmt.Errorf("%s - invalid argument for SetServiceCache: %T", logPrefix, cacheOrCtor)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.cache = cache
	return nil
}

// FirstServiceUUID returns the identifier of the first user service.
func (o *Orchestrator) FirstServiceUUID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.firstServiceUUID
}

// Log returns the resolved log service.
func (o *Orchestrator) Log() (Logger, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.log == nil {
		return nil, ErrLogNotSet
	}
	return o.log, nil
}

// Request returns the resolved request service, or nil.
func (o *Orchestrator) Request() any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.request
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Status returns a snapshot of the orchestrator.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	st := Status{
		State:            o.state.String(),
		Services:         o.services,
		FirstServiceUUID: o.firstServiceUUID,
		Phases:           make(map[Phase]PhaseStatus, len(o.phases)),
	}
	for p, ps := range o.phases {
		cp := *ps
		cp.Failures = append([]string(nil), ps.Failures...)
		st.Phases[p] = cp
	}
	return st
}

// LoadServices registers the cache and the orchestrator, then every built-in
// and user service concurrently, and finally resolves the log and request
// services. Failures are logged and never returned.
func (o *Orchestrator) LoadServices(ctx context.Context) {
	if err := o.begin(ctx, PhaseRegister, StateRegistering); err != nil {
		o.errorLog(fmt.Sprintf("%s - Failed to start some services: %v", logPrefix, err))
		return
	}

	start := time.Now()
	failures, err := o.register(ctx)
	o.finish(ctx, PhaseRegister, start, failures, err)

	if err != nil {
		o.errorLog(fmt.Sprintf("%s - Failed to start some services: %s", logPrefix, causeMessage(err)))
		return
	}
	o.infoLog(fmt.Sprintf("%s - [main] All services started.", logPrefix))
}

func (o *Orchestrator) register(ctx context.Context) ([]string, error) {
	o.mu.RLock()
	cache, builtIn, user := o.cache, o.builtIn, o.user
	o.mu.RUnlock()

	if cache == nil {
		return nil, ErrNoServiceCache
	}

	for _, self := range []any{cache, o} {
		if _, err := cache.Register(ctx, self); err != nil {
			return []string{servicecache.NameOf(self)}, err
		}
	}

	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures []string
	)
	record := func(svc any, err error) error {
		slog.Error(fmt.Sprintf("%s - failed to register %T: %v", logPrefix, svc, err))
		mu.Lock()
		failures = append(failures, fmt.Sprintf("%T", svc))
		mu.Unlock()
		return err
	}

	for _, svc := range builtIn {
		svc := svc
		g.Go(func() error {
			if _, err := cache.Register(ctx, svc); err != nil {
				return record(svc, err)
			}
			return nil
		})
	}
	for i, svc := range user {
		i, svc := i, svc
		g.Go(func() error {
			id, err := cache.Register(ctx, svc)
			if err != nil {
				return record(svc, err)
			}
			if i == 0 {
				o.mu.Lock()
				o.firstServiceUUID = id
				o.mu.Unlock()
			}
			return nil
		})
	}
	regErr := g.Wait()

	logErr := o.resolveLog(ctx, cache)
	reqErr := o.resolveRequest(ctx, cache)

	if ids, err := cache.GetUUIDs(ctx); err == nil {
		o.mu.Lock()
		o.services = len(ids)
		o.mu.Unlock()
		o.metrics.SetServices(len(ids))
	}

	for _, err := range []error{regErr, logErr, reqErr} {
		if err != nil {
			return failures, err
		}
	}
	return failures, nil
}

func (o *Orchestrator) resolveLog(ctx context.Context, cache ServiceCache) error {
	instance, err := cache.Get(ctx, LogServiceName)
	if err != nil {
		return err
	}
	logger, ok := instance.(Logger)
	if !ok {
		return fmt.Errorf("%s - %s is a %T, not a Logger", logPrefix, LogServiceName, instance)
	}
	o.mu.Lock()
	o.log = logger
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) resolveRequest(ctx context.Context, cache ServiceCache) error {
	instance, err := cache.Get(ctx, RequestServiceName)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.request = instance
	o.mu.Unlock()
	return nil
}

// ConfigServices hands cfg to every Configurable service concurrently.
func (o *Orchestrator) ConfigServices(ctx context.Context, cfg Config) error {
	return o.runPhase(ctx, PhaseConfig, StateConfiguring, "configured", "configure",
		func(ctx context.Context, instance any) error {
			if c, ok := instance.(Configurable); ok {
				return c.OnConfig(ctx, cfg)
			}
			return nil
		})
}

// InitServices initializes every Initializer service concurrently.
func (o *Orchestrator) InitServices(ctx context.Context) error {
	return o.runPhase(ctx, PhaseInit, StateInitializing, "initialized", "initialize",
		func(ctx context.Context, instance any) error {
			if i, ok := instance.(Initializer); ok {
				return i.OnInit(ctx)
			}
			return nil
		})
}

// RunServices notifies every Runner service concurrently that the host is
// running. On success the orchestrator is Ready.
func (o *Orchestrator) RunServices(ctx context.Context) error {
	err := o.runPhase(ctx, PhaseRun, StateRunning, "running", "call run on",
		func(ctx context.Context, instance any) error {
			if r, ok := instance.(Runner); ok {
				return r.OnRun(ctx)
			}
			return nil
		})
	if err == nil {
		o.mu.Lock()
		o.state = StateReady
		o.mu.Unlock()
	}
	return err
}

type hookFunc func(ctx context.Context, instance any) error

func (o *Orchestrator) runPhase(ctx context.Context, phase Phase, state State, doneVerb, failVerb string, hook hookFunc) error {
	if err := o.begin(ctx, phase, state); err != nil {
		return err
	}

	start := time.Now()
	failures, err := o.fanOut(ctx, phase, hook)
	o.finish(ctx, phase, start, failures, err)

	if err != nil {
		o.errorLog(fmt.Sprintf("%s - Failed to %s some services: %s", logPrefix, failVerb, causeMessage(err)))
		return err
	}
	o.infoLog(fmt.Sprintf("%s - [main] All services %s.", logPrefix, doneVerb))
	return nil
}

// fanOut calls hook on every registered service concurrently. Every call runs
// to completion; the first failure is returned.
func (o *Orchestrator) fanOut(ctx context.Context, phase Phase, hook hookFunc) ([]string, error) {
	o.mu.RLock()
	cache := o.cache
	o.mu.RUnlock()

	if cache == nil {
		return nil, &PhaseError{Phase: phase, Err: ErrNoServiceCache}
	}

	ids, err := cache.GetUUIDs(ctx)
	if err != nil {
		return nil, &PhaseError{Phase: phase, Err: err}
	}

	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures []string
	)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			name := id
			instance, err := cache.Get(ctx, id)
			if err == nil {
				name = servicecache.NameOf(instance)
				err = callHook(ctx, hook, instance)
			}
			if err == nil {
				return nil
			}

			o.errorLog(fmt.Sprintf("%s - %s hook of %s (%s) failed: %v", logPrefix, phase, name, id, err))
			mu.Lock()
			failures = append(failures, name)
			mu.Unlock()
			return &PhaseError{Phase: phase, Service: name, UUID: id, Err: err}
		})
	}
	return failures, g.Wait()
}

func callHook(ctx context.Context, hook hookFunc, instance any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &introspect.PanicError{Value: fmt.Sprint(r), Stack: string(debug.Stack())}
		}
	}()
	return hook(ctx, instance)
}

// begin moves phase to running and announces it with a started event.
func (o *Orchestrator) begin(ctx context.Context, phase Phase, next State) error {
	if err := o.claim(phase, next); err != nil {
		return err
	}

	o.mu.RLock()
	event := &events.PhaseEvent{
		Host:      o.host,
		Phase:     string(phase),
		Outcome:   events.OutcomeStarted,
		Services:  o.services,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	o.mu.RUnlock()

	o.publish(ctx, event)
	return nil
}

func (o *Orchestrator) claim(phase Phase, next State) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if outcome := o.phases[phase].Outcome; outcome != OutcomePending {
		return fmt.Errorf("%s - %s phase is already %s: %w", logPrefix, phase, outcome, ErrPhaseOrder)
	}
	if prev, ok := previousPhase[phase]; ok {
		switch o.phases[prev].Outcome {
		case OutcomeCompleted:
		case OutcomeFailed:
			// A failed registration is only logged; configuration still runs.
			if prev != PhaseRegister {
				return fmt.Errorf("%s - cannot start %s: %w", logPrefix, phase, ErrPhaseFailed)
			}
		default:
			return fmt.Errorf("%s - cannot start %s before %s: %w", logPrefix, phase, prev, ErrPhaseOrder)
		}
	}

	o.phases[phase].Outcome = OutcomeRunning
	o.state = next
	return nil
}

func (o *Orchestrator) finish(ctx context.Context, phase Phase, start time.Time, failures []string, err error) {
	elapsed := time.Since(start)

	o.mu.Lock()
	ps := o.phases[phase]
	ps.DurationMs = elapsed.Milliseconds()
	ps.Failures = append([]string(nil), failures...)
	ps.Outcome = OutcomeCompleted
	ps.Error = ""
	if err != nil {
		ps.Outcome = OutcomeFailed
		ps.Error = err.Error()
	}
	event := &events.PhaseEvent{
		Host:       o.host,
		Phase:      string(phase),
		Outcome:    events.OutcomeCompleted,
		Services:   o.services,
		Failures:   ps.Failures,
		Error:      ps.Error,
		DurationMs: ps.DurationMs,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	o.mu.Unlock()

	if err != nil {
		event.Outcome = events.OutcomeFailed
	}
	o.metrics.ObservePhase(string(phase), err, elapsed)
	o.publish(ctx, event)
}

func (o *Orchestrator) publish(ctx context.Context, event *events.PhaseEvent) {
	if err := o.publisher.PublishPhase(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s %s event: %v", logPrefix, event.Phase, event.Outcome, err))
	}
}

func causeMessage(err error) string {
	var pe *PhaseError
	if errors.As(err, &pe) && pe.Err != nil {
		return pe.Err.Error()
	}
	return err.Error()
}

func (o *Orchestrator) logger() Logger {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.log
}

func (o *Orchestrator) infoLog(msg string) {
	if l := o.logger(); l != nil {
		l.Info(msg)
		return
	}
	slog.Info(msg)
}

func (o *Orchestrator) errorLog(msg string) {
	if l := o.logger(); l != nil {
		l.Error(msg)
		return
	}
	slog.Error(msg)
}
