package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Payload is a flat string map stored as a JSON document column.
// Raw source rows, canonical fields and error snapshots all use it.
type Payload map[string]string

// Scan implements sql.Scanner for reading a JSON column.
// PostgreSQL jsonb arrives as []byte; SQLite text columns arrive as string.
func (p *Payload) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("failed to scan Payload: expected []byte or string, got %T", value)
	}

	out := Payload{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	*p = out
	return nil
}

// Value implements driver.Valuer for writing a JSON column.
func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(map[string]string(p))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return string(data), nil
}

// Clone returns an independent copy.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Scan implements sql.Scanner. Messages are stored semicolon-joined in a text
// column, with semicolons inside an entry escaped.
func (m *Messages) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = nil
	case []byte:
		*m = SplitMessages(string(v))
	case string:
		*m = SplitMessages(v)
	default:
		return fmt.Errorf("failed to scan Messages: expected text, got %T", value)
	}
	return nil
}

// Value implements driver.Valuer. An empty list is stored as NULL.
func (m Messages) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return m.Encode(), nil
}

// JSONDocument stores any JSON-marshalable value in a JSON column.
// Typed record details use it.
type JSONDocument struct {
	V interface{}
}

// Value implements driver.Valuer.
func (d JSONDocument) Value() (driver.Value, error) {
	if d.V == nil {
		return nil, nil
	}
	data, err := json.Marshal(d.V)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	if string(data) == "null" {
		return nil, nil
	}
	return string(data), nil
}

// Scan implements sql.Scanner. V must be a pointer to the destination.
func (d *JSONDocument) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("failed to scan document: expected []byte or string, got %T", value)
	}
	if err := json.Unmarshal(data, d.V); err != nil {
		return fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return nil
}
