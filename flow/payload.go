// Package flow provides the state-graph workflow execution engine for flowline.
package flow

import (
	"encoding/json"
	"fmt"
)

// Payload is the mutable data record threaded through a workflow run.
//
// A Payload is an open-ended mapping from field name to value. Agents read
// and write fields; conditions read fields. A single Payload instance is
// owned by exactly one run for the duration of that run — the engine never
// shares a Payload between concurrent runs, and callers must not either.
//
// Values should be JSON-serializable (strings, numbers, bools, nested maps
// and slices) so that Clone and the persistence backends work; channels,
// functions, and cyclic structures are not supported.
type Payload map[string]any

// Clone creates a deep copy of the payload using a JSON round trip.
//
// Use Clone when submitting the same initial data to multiple runs: each
// run must receive its own Payload instance.
//
// Limitations mirror encoding/json: unexported struct fields are dropped,
// and numeric values come back as float64.
func (p Payload) Clone() (Payload, error) {
	if p == nil {
		return Payload{}, nil
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	var copied Payload
	if err := json.Unmarshal(data, &copied); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if copied == nil {
		copied = Payload{}
	}

	return copied, nil
}

// GetString returns the named field as a string.
// The second return value reports whether the field exists and is a string.
func (p Payload) GetString(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt returns the named field as an int.
//
// JSON round trips turn numbers into float64, so both int and float64
// representations are accepted.
func (p Payload) GetInt(key string) (int, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// GetBool returns the named field as a bool.
func (p Payload) GetBool(key string) (bool, bool) {
	v, ok := p[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
