package introspect

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
)

// ErrNotInvocable is returned when Invoke is handed a value that cannot be
// called without arguments.
var ErrNotInvocable = errors.New("value is not invocable")

// Invocable is implemented by values that can be called as an operation while
// still carrying data members of their own.
type Invocable interface {
	Invoke(ctx context.Context) (any, error)
}

// PanicError carries a panic recovered while invoking an operation.
type PanicError struct {
	Value string
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %s", e.Value)
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// callable reports whether a func type (with recv leading receiver params) can
// be called with at most a context and returns nothing, T, error or (T, error).
func callable(t reflect.Type, recv int) bool {
	if t.Kind() != reflect.Func || t.IsVariadic() {
		return false
	}
	switch t.NumIn() - recv {
	case 0:
	case 1:
		if t.In(recv) != contextType {
			return false
		}
	default:
		return false
	}
	switch t.NumOut() {
	case 0, 1:
		return true
	case 2:
		return t.Out(1) == errorType
	}
	return false
}

// IsInvocable reports whether v is an operation: a non-nil func with a
// callable signature, or a value implementing Invocable.
func IsInvocable(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.(Invocable); ok {
		return true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return false
	}
	return callable(rv.Type(), 0)
}

// Invoke calls an invocable value with ctx. defined is false when the call
// produced no value (a func without results, or error-only results).
// A panic inside the call is returned as a *PanicError.
func Invoke(ctx context.Context, fn any) (result any, defined bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, defined = nil, false
			err = &PanicError{Value: fmt.Sprint(r), Stack: string(debug.Stack())}
		}
	}()

	if ctx == nil {
		ctx = context.Background()
	}

	if inv, ok := fn.(Invocable); ok {
		res, err := inv.Invoke(ctx)
		if err != nil {
			return nil, false, err
		}
		return res, res != nil, nil
	}

	if !IsInvocable(fn) {
		return nil, false, fmt.Errorf("%T: %w", fn, ErrNotInvocable)
	}

	rv := reflect.ValueOf(fn)
	var in []reflect.Value
	if rv.Type().NumIn() == 1 {
		in = []reflect.Value{reflect.ValueOf(ctx)}
	}

	out := rv.Call(in)
	switch len(out) {
	case 0:
		return nil, false, nil
	case 1:
		if rv.Type().Out(0) == errorType {
			if e, _ := out[0].Interface().(error); e != nil {
				return nil, false, e
			}
			return nil, false, nil
		}
		return out[0].Interface(), true, nil
	default:
		if e, _ := out[1].Interface().(error); e != nil {
			return nil, false, e
		}
		return out[0].Interface(), true, nil
	}
}
