package commsutil

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ErrEmptyPayload is returned when a message carries no body.
var ErrEmptyPayload = errors.New("empty payload")

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes a JSON message body into v. Unknown fields are
// ignored so that newer clients can talk to older hosts.
func DecodePayload(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return ErrEmptyPayload
	}
	return json.Unmarshal(data, v)
}
