package core

import (
	"strings"
	"testing"
)

// ----------------------------------------------------------------------------
// CleanCell Tests
// ----------------------------------------------------------------------------

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "simple string unchanged",
			input: "hello",
			want:  "hello",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "surrounded by whitespace",
			input: "  hello  ",
			want:  "hello",
		},
		{
			name:  "Excel formula number as text",
			input: `="12345"`,
			want:  "12345",
		},
		{
			name:  "Excel formula with inner whitespace",
			input: `=" 42 "`,
			want:  "42",
		},
		{
			name:  "bare formula kept",
			input: "=SUM(A1)",
			want:  "=SUM(A1)",
		},
		{
			name:  "lone prefix kept",
			input: `="`,
			want:  `="`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCell(tt.input); got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseID Tests
// ----------------------------------------------------------------------------

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr string
	}{
		{name: "plain integer", input: "42", want: 42},
		{name: "whitespace trimmed", input: " 7 ", want: 7},
		{name: "formula wrapped", input: `="12"`, want: 12},
		{name: "empty", input: "", wantErr: "required field id is empty"},
		{name: "blank", input: "   ", wantErr: "required field id is empty"},
		{name: "letters", input: "abc", wantErr: `invalid number "abc" for id`},
		{name: "decimal", input: "1.5", wantErr: "invalid number"},
		{name: "zero", input: "0", wantErr: "must be positive"},
		{name: "negative", input: "-3", wantErr: "must be positive"},
		{name: "overflow", input: "99999999999999999999", wantErr: "invalid number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseID("id", tt.input)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("ParseID(%q) error = %v, want containing %q", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseID(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseID(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseOptionalID(t *testing.T) {
	tests := []struct {
		input  string
		want   int64
		wantOK bool
	}{
		{"3", 3, true},
		{" 12 ", 12, true},
		{"", 0, false},
		{"x", 0, false},
		{"0", 0, false},
		{"2.0", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseOptionalID(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseOptionalID(%q) = (%d, %v), want (%d, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Optional numerics
// ----------------------------------------------------------------------------

func TestParseOptionalFloat(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *float64
	}{
		{"integer", "3", ptr(3.0)},
		{"decimal", "2.5", ptr(2.5)},
		{"comma decimal", "0,75", ptr(0.75)},
		{"leading point", ".5", ptr(0.5)},
		{"scientific", "1e2", ptr(100.0)},
		{"whitespace", " 4 ", ptr(4.0)},
		{"empty", "", nil},
		{"letters", "abc", nil},
		{"fraction text", "1/2", nil},
		{"unit suffix", "200g", nil},
		{"two commas", "1,000,5", nil},
		{"infinity", "1e999", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseOptionalFloat(tt.input)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("ParseOptionalFloat(%q) = %v, want nil", tt.input, *got)
			case tt.want != nil && got == nil:
				t.Errorf("ParseOptionalFloat(%q) = nil, want %v", tt.input, *tt.want)
			case tt.want != nil && *got != *tt.want:
				t.Errorf("ParseOptionalFloat(%q) = %v, want %v", tt.input, *got, *tt.want)
			}
		})
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		input string
		want  *float64
	}{
		{"0", nil},
		{"0.0", nil},
		{"0,0", nil},
		{"", nil},
		{"pinch", nil},
		{"0.25", ptr(0.25)},
		{"2", ptr(2.0)},
	}

	for _, tt := range tests {
		got := ParseQuantity(tt.input)
		switch {
		case tt.want == nil && got != nil:
			t.Errorf("ParseQuantity(%q) = %v, want nil", tt.input, *got)
		case tt.want != nil && (got == nil || *got != *tt.want):
			t.Errorf("ParseQuantity(%q) = %v, want %v", tt.input, got, *tt.want)
		}
	}
}

func TestParseOptionalInt32(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *int32
	}{
		{"minutes", "45", ptr(int32(45))},
		{"decimal truncated", "12.9", ptr(int32(12))},
		{"zero", "0", ptr(int32(0))},
		{"negative", "-5", nil},
		{"too large", "3000000000", nil},
		{"text", "n/a", nil},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseOptionalInt32(tt.input)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("ParseOptionalInt32(%q) = %d, want nil", tt.input, *got)
			case tt.want != nil && got == nil:
				t.Errorf("ParseOptionalInt32(%q) = nil, want %d", tt.input, *tt.want)
			case tt.want != nil && *got != *tt.want:
				t.Errorf("ParseOptionalInt32(%q) = %d, want %d", tt.input, *got, *tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Text
// ----------------------------------------------------------------------------

func TestOptionalText(t *testing.T) {
	if got := OptionalText("   "); got != nil {
		t.Errorf("OptionalText(blank) = %q, want nil", *got)
	}
	if got := OptionalText(" photo.jpg "); got == nil || *got != "photo.jpg" {
		t.Errorf("OptionalText() = %v, want photo.jpg", got)
	}
}

func TestRequireText(t *testing.T) {
	got, err := RequireText("title", "  Tarte  ")
	if err != nil || got != "Tarte" {
		t.Errorf("RequireText() = (%q, %v), want (Tarte, nil)", got, err)
	}
	if _, err := RequireText("title", "\t"); err == nil || !strings.Contains(err.Error(), "required field title") {
		t.Errorf("RequireText(blank) error = %v, want required field error", err)
	}
}

func ptr[T any](v T) *T { return &v }
