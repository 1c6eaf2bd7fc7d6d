package config

import (
	"os"
	"testing"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		envValue string
		fallback string
		expected string
	}{
		{"uses env value", "TEST_CFG_1", "hello", "default", "hello"},
		{"uses fallback when unset", "TEST_CFG_2", "", "default", "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnv(tc.key, tc.fallback)
			if result != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, result)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		envValue string
		fallback int
		expected int
	}{
		{"parses integer", "TEST_CFG_INT_1", "42", 10, 42},
		{"uses fallback for empty", "TEST_CFG_INT_2", "", 10, 10},
		{"uses fallback for non-numeric", "TEST_CFG_INT_3", "abc", 10, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvInt(tc.key, tc.fallback)
			if result != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, result)
			}
		})
	}
}

func TestParseOrigins(t *testing.T) {
	if got := parseOrigins(""); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}

	got := parseOrigins("https://app.prepnest.io, https://staging.prepnest.io ,")
	if len(got) != 2 {
		t.Fatalf("expected 2 origins, got %d", len(got))
	}
	if got[0] != "https://app.prepnest.io" || got[1] != "https://staging.prepnest.io" {
		t.Errorf("unexpected origins: %v", got)
	}
}
