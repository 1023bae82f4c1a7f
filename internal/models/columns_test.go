package models

import (
	"database/sql/driver"
	"testing"
)

// TestColumnsImplementInterfaces verifies column types implement the database interfaces
func TestColumnsImplementInterfaces(t *testing.T) {
	var _ driver.Valuer = Payload{}
	var _ driver.Valuer = Messages{}
	var _ driver.Valuer = JSONDocument{}

	var p Payload
	var scanner interface{} = &p
	if _, ok := scanner.(interface{ Scan(interface{}) error }); !ok {
		t.Error("Payload does not implement sql.Scanner interface")
	}
}

// TestPayloadScan tests reading payloads from both drivers' representations
func TestPayloadScan(t *testing.T) {
	tests := []struct {
		name      string
		input     interface{}
		want      Payload
		wantError bool
	}{
		{
			name:  "bytes from postgres",
			input: []byte(`{"permit_number":"B-1001"}`),
			want:  Payload{"permit_number": "B-1001"},
		},
		{
			name:  "string from sqlite",
			input: `{"address":"123 Main St"}`,
			want:  Payload{"address": "123 Main St"},
		},
		{
			name:  "nil value",
			input: nil,
			want:  nil,
		},
		{
			name:      "invalid json",
			input:     []byte(`{not json`),
			wantError: true,
		},
		{
			name:      "wrong type",
			input:     42,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Payload
			err := p.Scan(tt.input)
			if (err != nil) != tt.wantError {
				t.Fatalf("Scan() error = %v, wantError %v", err, tt.wantError)
			}
			if tt.wantError {
				return
			}
			if len(p) != len(tt.want) {
				t.Fatalf("Scan() got %v, want %v", p, tt.want)
			}
			for k, v := range tt.want {
				if p[k] != v {
					t.Errorf("Scan()[%q] = %q, want %q", k, p[k], v)
				}
			}
		})
	}
}

// TestMessagesColumn tests the semicolon-joined storage form
func TestMessagesColumn(t *testing.T) {
	m := Messages{"Permit number is required", "Duplicate of record 0"}

	v, err := m.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if v != "Permit number is required; Duplicate of record 0" {
		t.Errorf("Value() = %v", v)
	}

	var back Messages
	if err := back.Scan(v); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(back) != 2 || back[1] != "Duplicate of record 0" {
		t.Errorf("Scan() = %v", back)
	}

	empty, err := Messages(nil).Value()
	if err != nil || empty != nil {
		t.Errorf("empty Value() = %v, %v; want nil, nil", empty, err)
	}
}

func TestMessagesColumnKeepsSemicolons(t *testing.T) {
	m := Messages{
		"Use format A; or B",
		`pattern "^\d+;$" did not match`,
		"plain",
	}

	v, err := m.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}

	var back Messages
	if err := back.Scan(v); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(back) != len(m) {
		t.Fatalf("Scan() = %q, want %q", back, m)
	}
	for i := range m {
		if back[i] != m[i] {
			t.Errorf("entry %d = %q, want %q", i, back[i], m[i])
		}
	}
	if got := SplitMessages("first; second"); len(got) != 2 {
		t.Errorf("SplitMessages() = %q", got)
	}
}

// TestJSONDocumentRoundTrip tests scanning typed details into a destination pointer
func TestJSONDocumentRoundTrip(t *testing.T) {
	valuation := 125000.0
	in := &PermitDetails{PermitNumber: "B-1001", Valuation: &valuation}

	v, err := JSONDocument{V: in}.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}

	var out PermitDetails
	doc := JSONDocument{V: &out}
	if err := doc.Scan(v); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if out.PermitNumber != "B-1001" || out.Valuation == nil || *out.Valuation != valuation {
		t.Errorf("Scan() = %+v", out)
	}

	var nilDetails *PermitDetails
	v, err = JSONDocument{V: nilDetails}.Value()
	if err != nil || v != nil {
		t.Errorf("nil details Value() = %v, %v; want nil, nil", v, err)
	}
}
