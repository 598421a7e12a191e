package logger

import (
	"errors"
	"testing"
)

func TestSanitizer_Sanitize(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "password",
			input:    "login with password=secret123",
			expected: "login with password=***",
		},
		{
			name:     "token",
			input:    "auth token=abc123xyz",
			expected: "auth token=***",
		},
		{
			name:     "bearer token",
			input:    "Authorization: Bearer eyJhbGc...",
			expected: "Authorization: bearer ***",
		},
		{
			name:     "home path kept by default",
			input:    "scanning /home/john/.cache",
			expected: "scanning /home/john/.cache",
		},
		{
			name:     "no sensitive data",
			input:    "normal log message",
			expected: "normal log message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.Sanitize(tt.input)
			if result != tt.expected {
				t.Errorf("Sanitize() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSanitizer_MaskHomeDirs(t *testing.T) {
	s := NewSanitizer()
	s.MaskHomeDirs()

	tests := []struct {
		input    string
		expected string
	}{
		{"config in /home/john/.config/app", "config in /home/***/.config/app"},
		{"file at /Users/jane/Documents", "file at /Users/***/Documents"},
		{"file at C:\\Users\\john\\Documents\\file.txt", "file at ***:\\Users\\***\\Documents\\file.txt"},
		{"/var/lib/docker", "/var/lib/docker"},
	}

	for _, tt := range tests {
		if got := s.Sanitize(tt.input); got != tt.expected {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestSanitizer_SanitizeArgs(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name     string
		input    []any
		validate func([]any) bool
	}{
		{
			name:  "password key-value",
			input: []any{"user", "john", "password", "secret123"},
			validate: func(result []any) bool {
				return len(result) == 4 && result[3] != "secret123"
			},
		},
		{
			name:  "pattern inside ordinary value",
			input: []any{"url", "http://host/?token=abc123"},
			validate: func(result []any) bool {
				return len(result) == 2 && result[1] == "http://host/?token=***"
			},
		},
		{
			name:  "error value under ordinary key",
			input: []any{"error", errors.New("open /x: permission denied")},
			validate: func(result []any) bool {
				return result[1] == "open /x: permission denied"
			},
		},
		{
			name:  "no sensitive data",
			input: []any{"path", "/a/b", "size", int64(1024)},
			validate: func(result []any) bool {
				return len(result) == 4 && result[3] == int64(1024)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.SanitizeArgs(tt.input)
			if !tt.validate(result) {
				t.Errorf("SanitizeArgs() validation failed for %v", result)
			}
		})
	}
}

func TestSanitizer_AddRule(t *testing.T) {
	s := NewSanitizer()

	if err := s.AddRule(`SSN=\d{3}-\d{2}-\d{4}`, "SSN=***"); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	input := "User SSN=123-45-6789 registered"
	expected := "User SSN=*** registered"
	if result := s.Sanitize(input); result != expected {
		t.Errorf("Expected %q, got %q", expected, result)
	}

	if err := s.AddRule(`(`, "x"); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestSanitizer_MaskValue(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		input    string
		expected string
	}{
		{"ab", "***"},
		{"abc", "a***"},
		{"abcdefgh", "a***"},
		{"abcdefghi", "a***i"},
		{"verylongpassword", "v***d"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := s.maskValue(tt.input)
			if result != tt.expected {
				t.Errorf("maskValue(%s) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSanitizer_IsSensitiveKey(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		input    string
		expected bool
	}{
		{"password", true},
		{"user_password", true},
		{"PASSWORD", true},
		{"token", true},
		{"api_key", true},
		{"path", false},
		{"size", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := s.isSensitiveKey(tt.input)
			if result != tt.expected {
				t.Errorf("isSensitiveKey(%s) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}
