package main

import (
	"testing"
	"time"
)

func TestParseOrderTime(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantYear    int
		wantMonth   time.Month
		wantDay     int
		shouldError bool
	}{
		{
			name:      "Long month name",
			input:     "January 15, 2025",
			wantYear:  2025,
			wantMonth: time.January,
			wantDay:   15,
		},
		{
			name:      "Short month name",
			input:     "Mar 3, 2025",
			wantYear:  2025,
			wantMonth: time.March,
			wantDay:   3,
		},
		{
			name:      "US numeric",
			input:     "11/04/2025",
			wantYear:  2025,
			wantMonth: time.November,
			wantDay:   4,
		},
		{
			name:      "German numeric",
			input:     "04.11.2025",
			wantYear:  2025,
			wantMonth: time.November,
			wantDay:   4,
		},
		{
			name:      "ISO",
			input:     "2025-12-31",
			wantYear:  2025,
			wantMonth: time.December,
			wantDay:   31,
		},
		{
			name:      "Extra whitespace",
			input:     "  January   15,  2025 \n",
			wantYear:  2025,
			wantMonth: time.January,
			wantDay:   15,
		},
		{
			name:        "Invalid format",
			input:       "not a date",
			shouldError: true,
		},
		{
			name:        "Empty string",
			input:       "",
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOrderTime(tt.input)

			if tt.shouldError {
				if err == nil {
					t.Errorf("Expected error for input '%s', but got none", tt.input)
				}
				return
			}

			if err != nil {
				t.Errorf("Unexpected error for input '%s': %v", tt.input, err)
				return
			}

			if got.Year() != tt.wantYear {
				t.Errorf("Year mismatch: got %d, want %d", got.Year(), tt.wantYear)
			}
			if got.Month() != tt.wantMonth {
				t.Errorf("Month mismatch: got %v, want %v", got.Month(), tt.wantMonth)
			}
			if got.Day() != tt.wantDay {
				t.Errorf("Day mismatch: got %d, want %d", got.Day(), tt.wantDay)
			}
			if got.Location() != time.UTC {
				t.Errorf("Timezone mismatch: got %v, want UTC", got.Location())
			}
		})
	}
}

func TestParseOrderDate(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"January 15, 2025", "2025-01-15"},
		{"15.01.2025", "2025-01-15"},
		{"N/A", "N/A"},
		{"Processing", "Processing"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseOrderDate(tt.input); got != tt.want {
				t.Errorf("ParseOrderDate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanOrderDate(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"January 15, 2025 NOT SHIPPED", "2025-01-15"},
		{"Jan 2, 2025\nNOT SHIPPED", "2025-01-02"},
		{"Ordered yesterday", "Ordered yesterday"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := cleanOrderDate(tt.input); got != tt.want {
				t.Errorf("cleanOrderDate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
