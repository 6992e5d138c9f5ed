package core

import (
	"math"
	"testing"
	"time"
)

// ----------------------------------------------------------------------------
// ParseTimestamp Tests
// ----------------------------------------------------------------------------

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValid bool
		want      time.Time
	}{
		{"ISO date", "2024-01-15", true, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"ISO date time", "2024-01-15 13:45:10", true, time.Date(2024, 1, 15, 13, 45, 10, 0, time.UTC)},
		{"ISO T separator", "2024-01-15T13:45:10", true, time.Date(2024, 1, 15, 13, 45, 10, 0, time.UTC)},
		{"RFC3339 with zone", "2024-01-15T13:45:10Z", true, time.Date(2024, 1, 15, 13, 45, 10, 0, time.UTC)},
		{"fractional seconds", "2024-01-15 13:45:10.250", true, time.Date(2024, 1, 15, 13, 45, 10, 250000000, time.UTC)},
		{"US slash", "1/15/2024", true, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"US slash with time", "1/15/2024 9:30", true, time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)},
		{"month name", "Jan 15, 2024", true, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"compact", "20240115", true, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"surrounding whitespace", "  2024-01-15  ", true, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"empty", "", false, time.Time{}},
		{"free text", "next tuesday", false, time.Time{}},
		{"invalid month", "2024-13-01", false, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.input)
			if ok != tt.wantValid {
				t.Fatalf("ParseTimestamp(%q) ok = %v, want %v", tt.input, ok, tt.wantValid)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTimestamp_TwoDigitYear(t *testing.T) {
	originalPivot := TwoDigitYearPivot
	defer func() { TwoDigitYearPivot = originalPivot }()
	TwoDigitYearPivot = 20

	tests := []struct {
		name     string
		input    string
		wantYear int
	}{
		{"2-digit year 25 as 2025", "01/15/25", 2025},
		{"2-digit year 99 as 1999", "01/15/99", 1999},
		{"2-digit year 85 as 1985", "01/15/85", 1985},
		{"dash format", "1-15-99", 1999},
		{"dot format", "01.15.99", 1999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.input)
			if !ok {
				t.Fatalf("ParseTimestamp(%q) failed", tt.input)
			}
			if got.Year() != tt.wantYear {
				t.Errorf("ParseTimestamp(%q).Year = %d, want %d", tt.input, got.Year(), tt.wantYear)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseBool Tests
// ----------------------------------------------------------------------------

func TestParseBool(t *testing.T) {
	tests := []struct {
		input     string
		wantValid bool
		want      bool
	}{
		{"true", true, true},
		{"TRUE", true, true},
		{"t", true, true},
		{"Yes", true, true},
		{"y", true, true},
		{"1", true, true},
		{" false ", true, false},
		{"F", true, false},
		{"no", true, false},
		{"N", true, false},
		{"0", true, false},
		{"", false, false},
		{"maybe", false, false},
		{"2", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseBool(tt.input)
			if ok != tt.wantValid {
				t.Fatalf("ParseBool(%q) ok = %v, want %v", tt.input, ok, tt.wantValid)
			}
			if got != tt.want {
				t.Errorf("ParseBool(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsMissing(t *testing.T) {
	missing := []string{"", "  ", "NA", "N/A", "NULL", "null", "NaN", "nan", "None", "#N/A", "<NA>"}
	for _, s := range missing {
		if !IsMissing(s) {
			t.Errorf("IsMissing(%q) = false, want true", s)
		}
	}

	present := []string{"0", "none of it", "n", "NAN!", "-"}
	for _, s := range present {
		if IsMissing(s) {
			t.Errorf("IsMissing(%q) = true, want false", s)
		}
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple string unchanged", "hello", "hello"},
		{"empty string", "", ""},
		{"surrounded by whitespace", "  hello  ", "hello"},
		{"Excel formula with quotes", `="hello"`, "hello"},
		{"Excel formula number as text", `="00123"`, "00123"},
		{"lone equals kept", "=", "="},
		{"formula expression kept", "=SUM(A1)", "=SUM(A1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCell(tt.input); got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"nil", nil, ""},
		{"string", "abc", "abc"},
		{"int", int64(-42), "-42"},
		{"whole float", 3.0, "3.0"},
		{"fraction", 0.1, "0.1"},
		{"large float", 1e20, "1e+20"},
		{"nan", math.NaN(), "nan"},
		{"true", true, "True"},
		{"false", false, "False"},
		{"timestamp", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "2024-01-15 00:00:00"},
		{"timestamp with fraction", time.Date(2024, 1, 15, 0, 0, 0, 500000000, time.UTC), "2024-01-15 00:00:00.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatValue(tt.input); got != tt.want {
				t.Errorf("FormatValue(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
