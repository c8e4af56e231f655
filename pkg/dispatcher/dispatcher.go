package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"runtime/debug"
	"time"

	"github.com/morezero/service-host/pkg/introspect"
	"github.com/morezero/service-host/pkg/metrics"
)

const logPrefix = "dispatcher:dispatch"

// fallbackBody is sent when even the error envelope cannot be produced.
var fallbackBody = []byte("{\n  \"$type\": \"error\",\n  \"$statusCode\": 500,\n  \"code\": 500,\n  \"message\": \"Internal Service Error\"\n}\n")

// InstanceFunc looks up the service instance a route is bound to. A slice
// result is narrowed to its first element.
type InstanceFunc func(ctx context.Context, name string) (any, error)

// Observer is notified once per completed request.
type Observer interface {
	ObserveRequest(rc *RequestContext, status int, elapsed time.Duration)
}

// Options configures a Dispatcher.
type Options struct {
	// Production suppresses fault details in error envelopes.
	Production bool
	Observer   Observer
	Metrics    *metrics.Metrics
}

// Dispatcher serves resource requests against service instances.
type Dispatcher struct {
	opts Options
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	return &Dispatcher{opts: opts}
}

// Handler returns an http.Handler that serves the instance named serviceName.
// The instance is looked up on every request.
func (d *Dispatcher) Handler(serviceName string, getInstance InstanceFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := FromHTTPRequest(r)
		body, status := d.Serve(r.Context(), rc, d.lookup(serviceName, getInstance))

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		if _, err := w.Write(body); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to write reply to %s: %v", logPrefix, rc.RemoteAddress(), err))
		}
	})
}

// Serve resolves rc against the instance returned by root and renders exactly
// one reply body with its status code. Faults are contained here: a failure
// while resolving or rendering yields an error envelope, and a failure while
// rendering that yields a fixed minimal 500 body.
func (d *Dispatcher) Serve(ctx context.Context, rc *RequestContext, root func(ctx context.Context) (any, error)) ([]byte, int) {
	start := time.Now()
	slog.Info(fmt.Sprintf("%s | %s | %s | %s | %s",
		start.Format(time.RFC3339), rc.RemoteAddress(), rc.CommonName(), rc.Method(), rc.URL()))

	ctx = WithRequestContext(ctx, rc)

	body, status, err := d.respond(ctx, rc, root)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - Error: %v", logPrefix, err))
		body, status, err = d.respondError(rc, err)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - Unexpected error while handling error: %v", logPrefix, err))
			body, status = fallbackBody, http.StatusInternalServerError
		}
	}

	elapsed := time.Since(start)
	d.opts.Metrics.ObserveRequest(rc.Method(), status, elapsed)
	if d.opts.Observer != nil {
		d.opts.Observer.ObserveRequest(rc, status, elapsed)
	}
	return body, status
}

func (d *Dispatcher) respond(ctx context.Context, rc *RequestContext, root func(ctx context.Context) (any, error)) (body []byte, status int, err error) {
	defer func() {
		if r := recover(); r != nil {
			body, status = nil, 0
			err = &introspect.PanicError{Value: fmt.Sprint(r), Stack: string(debug.Stack())}
		}
	}()

	instance, err := root(ctx)
	if err != nil {
		return nil, 0, err
	}

	content, found, err := Resolve(ctx, rc, instance, SplitURL(rc.URL()))
	if err != nil {
		return nil, 0, err
	}

	var env *Envelope
	if found {
		env = Shape(rc, content)
	} else {
		env = ShapeError(rc, http.StatusNotFound, "Not Found", nil, d.opts.Production)
	}

	body, err = env.Encode()
	if err != nil {
		return nil, 0, err
	}
	return body, env.StatusCode(), nil
}

func (d *Dispatcher) respondError(rc *RequestContext, fault error) (body []byte, status int, err error) {
	defer func() {
		if r := recover(); r != nil {
			body, status = nil, 0
			err = fmt.Errorf("%s - panic while shaping error: %v", logPrefix, r)
		}
	}()

	env := ShapeError(rc, http.StatusInternalServerError, "Internal Service Error", fault, d.opts.Production)
	body, err = env.Encode()
	if err != nil {
		return nil, 0, err
	}
	return body, env.StatusCode(), nil
}

func (d *Dispatcher) lookup(serviceName string, getInstance InstanceFunc) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		if getInstance == nil {
			return nil, fmt.Errorf("%s - no instance lookup for %q: %w", logPrefix, serviceName, ErrMisconfigured)
		}
		instance, err := getInstance(ctx, serviceName)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to look up service %q: %w", logPrefix, serviceName, err)
		}
		instance = firstOf(instance)
		if !introspect.IsContainer(instance) {
			slog.Error(fmt.Sprintf("%s - service %q is misconfigured: resolved to %T", logPrefix, serviceName, instance))
			return nil, fmt.Errorf("%s - service %q resolved to %T: %w", logPrefix, serviceName, instance, ErrMisconfigured)
		}
		return instance, nil
	}
}

// firstOf narrows a slice or array of instances to its first element. An
// empty sequence yields nil.
func firstOf(instance any) any {
	if instance == nil {
		return nil
	}
	rv := reflect.ValueOf(instance)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return nil
		}
		return rv.Index(0).Interface()
	}
	return instance
}
