package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize_Silent(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")

	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("silent logger should not enable any level")
	}
}

func TestInitialize_FromEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "warn")

	if err := InitializeFromEnv(); err != nil {
		t.Fatalf("InitializeFromEnv() error = %v", err)
	}
	defer SetLogger(nil)

	if GetLogger().Core().Enabled(zapcore.InfoLevel) {
		t.Error("warn logger should not enable info")
	}
	if !GetLogger().Core().Enabled(zapcore.WarnLevel) {
		t.Error("warn logger should enable warn")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{" error ", zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			if err != nil {
				t.Fatalf("parseLevel(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInitialize_UnknownLevel(t *testing.T) {
	defer SetLogger(nil)

	if err := Initialize("verbose"); err == nil {
		t.Error("Initialize(\"verbose\") error = nil, want unknown level")
	}
	if _, err := parseLevel("verbose"); err == nil {
		t.Error("parseLevel(\"verbose\") error = nil")
	}
}

func TestLogDeviceDelivered(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogDeviceDelivered("Living Room", "10.0.0.5", "new")

	entries := logs.FilterMessage("Device delivered").All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["name"] != "Living Room" {
		t.Errorf("name = %v, want Living Room", fields["name"])
	}
	if fields["reason"] != "new" {
		t.Errorf("reason = %v, want new", fields["reason"])
	}
}

func TestLogHeaders_SortedPairs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogHeaders("headers", map[string]string{"USN": "uuid:1", "LOCATION": "http://x/"})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	pairs, ok := entries[0].ContextMap()["headers"].([]interface{})
	if !ok || len(pairs) != 2 {
		t.Fatalf("headers field = %#v, want two pairs", entries[0].ContextMap()["headers"])
	}
	if pairs[0] != "LOCATION=http://x/" {
		t.Errorf("first pair = %v, want LOCATION=http://x/", pairs[0])
	}
}
