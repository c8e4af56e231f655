package dispatcher

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/morezero/service-host/pkg/introspect"
)

// Shape renders a resolved value as a response envelope. Containers list
// their data members followed by a descriptor per operation; everything else
// is wrapped as a scalar under "payload".
func Shape(rc *RequestContext, content any) *Envelope {
	if introspect.IsDate(content) || introspect.IsArray(content) || !introspect.IsContainer(content) {
		return shapeScalar(rc, content)
	}
	return shapeObject(rc, content)
}

func shapeObject(rc *RequestContext, content any) *Envelope {
	env := NewEnvelope().
		Set("$ref", rc.Ref()).
		Set("$type", introspect.TypeName(content))

	members := introspect.Members(content)
	for _, m := range members {
		if m.Kind == introspect.KindField {
			env.Set(m.Name, plainValue(m.Value))
		}
	}
	for _, m := range members {
		if m.Kind == introspect.KindOperation {
			env.Set(m.Name, operationDescriptor(rc, m.Name))
		}
	}
	return env
}

func operationDescriptor(rc *RequestContext, name string) *Envelope {
	return NewEnvelope().
		Set("$type", "Function").
		Set("$method", MethodPost).
		Set("$ref", rc.Ref(name))
}

func shapeScalar(rc *RequestContext, content any) *Envelope {
	env := NewEnvelope().Set("$ref", rc.Ref())

	if !introspect.IsInvocable(content) {
		return env.
			Set("$path", "payload").
			Set("$type", introspect.TypeName(content)).
			Set("payload", plainValue(content))
	}

	// An operation fetched with "get" describes itself.
	env.Set("$type", introspect.TypeName(content)).Set("$method", MethodPost)
	for _, f := range introspect.OwnFields(content) {
		if f.Name == "arguments" || f.Name == "caller" {
			continue
		}
		env.Set(f.Name, plainValue(f.Value))
	}
	return env
}

// plainValue renders a data value for a reply body. Nested containers are
// rendered through the same member table that paths resolve against, so each
// key in the body is addressable. Operations inside nested values are left
// out; a GET on the nested address lists them. Values with their own JSON or
// text encoding are kept as they are.
func plainValue(v any) any {
	return plain(v, make(map[uintptr]bool))
}

func plain(v any, onPath map[uintptr]bool) any {
	if v == nil || introspect.IsDate(v) {
		return v
	}
	if introspect.IsInvocable(v) {
		return nil
	}
	switch v.(type) {
	case json.Marshaler, encoding.TextMarshaler:
		return v
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		return nil
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return v
		}
		// a value that contains itself renders as null at the repeat
		id := rv.Pointer()
		if onPath[id] {
			return nil
		}
		onPath[id] = true
		defer delete(onPath, id)
	}

	if introspect.IsContainer(v) {
		env := NewEnvelope()
		for _, m := range introspect.Members(v) {
			if m.Kind == introspect.KindField {
				env.Set(m.Name, plain(m.Value, onPath))
			}
		}
		return env
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = plain(rv.Index(i).Interface(), onPath)
		}
		return out
	case reflect.Pointer:
		return plain(rv.Elem().Interface(), onPath)
	}
	return v
}

// ShapeError renders an error envelope. The first two arguments are a status
// code and a message; they are swapped when given as (message, code). A fault
// that is an *HTTPError overrides both. Fault details are attached under
// "exception" unless production is set.
func ShapeError(rc *RequestContext, codeOrMessage, messageOrCode any, fault error, production bool) *Envelope {
	first, second := codeOrMessage, messageOrCode
	if _, isString := first.(string); isString {
		if _, isCode := asInt(second); isCode {
			first, second = second, first
		}
	}

	code, _ := asInt(first)
	message := ""
	if second != nil {
		message = fmt.Sprint(second)
	}

	var httpErr *HTTPError
	if errors.As(fault, &httpErr) {
		code, message = httpErr.Code, httpErr.Message
	}

	env := NewEnvelope().
		Set("$type", "error").
		Set("$ref", rc.Ref()).
		Set("$statusCode", code).
		Set("code", code).
		Set("message", message)

	if !production && fault != nil {
		env.Set("exception", describeFault(fault))
	}
	return env
}

func describeFault(fault error) *Envelope {
	ex := NewEnvelope().
		Set("$type", introspect.TypeName(fault)).
		Set("message", fault.Error())

	for _, f := range introspect.OwnFields(fault) {
		if s, ok := f.Value.(string); ok && f.Name == "stack" {
			ex.Set("stack", strings.Split(s, "\n"))
			continue
		}
		ex.Set(f.Name, f.Value)
	}

	if cause := errors.Unwrap(fault); cause != nil {
		ex.Set("cause", cause.Error())
	}
	return ex
}

func asInt(v any) (int, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(rv.Uint()), true
	}
	return 0, false
}
