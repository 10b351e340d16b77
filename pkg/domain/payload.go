package domain

import (
	"bytes"
	"encoding/json"
)

// Payload wraps the opaque JSON content of an entity (question text, options,
// explanation and so on). The sequence core never inspects it; the bytes are
// cloned on every copy so stored state cannot be mutated through a caller's
// slice.
type Payload struct {
	raw json.RawMessage
}

// NewPayload builds a payload wrapper from raw JSON.
func NewPayload(raw json.RawMessage) Payload {
	return Payload{raw: cloneRawMessage(raw)}
}

// NewPayloadFromValue marshals a typed value into a Payload.
func NewPayloadFromValue[T any](value T) (Payload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Payload{}, err
	}
	return Payload{raw: raw}, nil
}

// IsEmpty reports whether the payload contains no bytes.
func (p Payload) IsEmpty() bool {
	return len(p.raw) == 0
}

// Raw returns a cloned copy of the underlying JSON bytes.
func (p Payload) Raw() json.RawMessage {
	return cloneRawMessage(p.raw)
}

// Clone returns an independent copy of the payload.
func (p Payload) Clone() Payload {
	return Payload{raw: cloneRawMessage(p.raw)}
}

// Equal reports whether both payloads hold identical bytes.
func (p Payload) Equal(other Payload) bool {
	return bytes.Equal(p.raw, other.raw)
}

// MarshalJSON emits the wrapped JSON verbatim, or null when empty.
func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p.raw) == 0 {
		return []byte("null"), nil
	}
	return cloneRawMessage(p.raw), nil
}

// UnmarshalJSON stores a copy of the raw JSON value.
func (p *Payload) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		p.raw = nil
		return nil
	}
	p.raw = cloneRawMessage(data)
	return nil
}

func cloneRawMessage(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	cloned := make(json.RawMessage, len(raw))
	copy(cloned, raw)
	return cloned
}
