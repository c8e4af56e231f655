// Package dispatcher exposes an in-process object graph as a resource tree:
// it resolves request paths against a service instance, invokes operations,
// and renders results and faults as canonical JSON envelopes.
package dispatcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

const envelopeLogPrefix = "dispatcher:envelope"

// Envelope is a JSON object whose keys serialize in insertion order, so every
// response starts with "$ref" and "$type" no matter what follows.
type Envelope struct {
	keys   []string
	values map[string]any
}

// NewEnvelope creates an empty Envelope.
func NewEnvelope() *Envelope {
	return &Envelope{values: make(map[string]any)}
}

// Set stores value under key. Re-setting a key keeps its original position.
func (e *Envelope) Set(key string, value any) *Envelope {
	if _, exists := e.values[key]; !exists {
		e.keys = append(e.keys, key)
	}
	e.values[key] = value
	return e
}

// Get returns the value stored under key.
func (e *Envelope) Get(key string) (any, bool) {
	v, ok := e.values[key]
	return v, ok
}

// Keys returns the keys in serialization order.
func (e *Envelope) Keys() []string {
	out := make([]string, len(e.keys))
	copy(out, e.keys)
	return out
}

// Len returns the number of keys.
func (e *Envelope) Len() int {
	return len(e.keys)
}

// IsError reports whether this is an error envelope.
func (e *Envelope) IsError() bool {
	t, _ := e.values["$type"].(string)
	return t == "error"
}

// StatusCode returns the transport status carried in "$statusCode", or 200.
func (e *Envelope) StatusCode() int {
	if code, ok := e.values["$statusCode"].(int); ok && code != 0 {
		return code
	}
	return http.StatusOK
}

// MarshalJSON implements json.Marshaler.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range e.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(e.values[k])
		if err != nil {
			return nil, fmt.Errorf("%s - failed to encode %q: %w", envelopeLogPrefix, k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Encode renders the envelope as a reply body: two-space indented JSON
// followed by a newline.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// CommsRequest is the JSON envelope for resource requests arriving over COMMS.
type CommsRequest struct {
	Method   string `json:"method"`
	URL      string `json:"url"`
	ClientID string `json:"clientId,omitempty"`
}
