package logging

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInit_SetsGlobalLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	Init("error", false)
	if zerolog.GlobalLevel() != zerolog.ErrorLevel {
		t.Errorf("global level = %v, want error", zerolog.GlobalLevel())
	}
}

func TestStartupLogger_Builder(t *testing.T) {
	s := NewStartupLogger("vista-api").
		Bucket("media", "vista-resources").
		Table("documents", "vista-documents").
		Backend("store", "dynamodb").
		Feature("versioning", true).
		Config("model", "gemini-2.5-flash-image")

	if s.buckets["media"] != "vista-resources" {
		t.Errorf("bucket not recorded: %v", s.buckets)
	}
	if s.backends["store"] != "dynamodb" {
		t.Errorf("backend not recorded: %v", s.backends)
	}
	if !s.features["versioning"] {
		t.Error("feature flag not recorded")
	}
	// Log must not panic with a populated builder.
	s.Log()
}
