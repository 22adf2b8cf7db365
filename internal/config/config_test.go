package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestGetConfigDir(t *testing.T) {
	dir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if !strings.Contains(dir, "rendercast") {
		t.Errorf("GetConfigDir() = %v, should contain 'rendercast'", dir)
	}
}

func TestGetConfigDir_XDG(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("XDG_CONFIG_HOME only applies on Linux and other Unix systems")
	}
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	dir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if dir != filepath.Join("/tmp/xdg", "rendercast") {
		t.Errorf("GetConfigDir() = %v, want /tmp/xdg/rendercast", dir)
	}

	path, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("GetConfigPath() = %v, want config.yaml", path)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Fetch.Attempts != 3 || s.Ports.LockWindow != 15*time.Second {
		t.Errorf("Load() = %+v, want defaults", s)
	}
}

func TestLoad_ParsesAndFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `version: 1
log_level: debug
discovery:
  research_interval: 0s
  listen_notify: true
  mdns_service: _dlna._tcp
fetch:
  retry_delay: 250ms
server:
  port: 8089
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if s.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", s.LogLevel)
	}
	if s.Discovery.ResearchInterval != 0 {
		t.Errorf("ResearchInterval = %v, want 0 (explicitly disabled)", s.Discovery.ResearchInterval)
	}
	if !s.Discovery.ListenNotify || s.Discovery.MDNSService != "_dlna._tcp" {
		t.Errorf("Discovery = %+v", s.Discovery)
	}
	if s.Fetch.RetryDelay != 250*time.Millisecond {
		t.Errorf("RetryDelay = %v, want 250ms", s.Fetch.RetryDelay)
	}
	if s.Fetch.Attempts != 3 {
		t.Errorf("Attempts = %d, want default 3", s.Fetch.Attempts)
	}
	if s.Discovery.SearchTarget != Default().Discovery.SearchTarget {
		t.Errorf("SearchTarget = %q, want default", s.Discovery.SearchTarget)
	}
	if s.Server.Port != 8089 {
		t.Errorf("Server.Port = %d, want 8089", s.Server.Port)
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown version", "version: 2\n", "unsupported config version"},
		{"negative duration", "fetch:\n  timeout: -1s\n", "fetch.timeout"},
		{"bad port", "server:\n  port: 70000\n", "server.port"},
		{"bad log level", "log_level: loud\n", "log_level"},
		{"malformed yaml", "fetch: [\n", "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestValidate_Attempts(t *testing.T) {
	s := Default()
	s.Fetch.Attempts = 0
	if err := s.Validate(); err == nil || !strings.Contains(err.Error(), "fetch.attempts") {
		t.Errorf("Validate() = %v, want attempts error", err)
	}
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	written, err := WriteDefault(path)
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if written != path {
		t.Errorf("WriteDefault() path = %q, want %q", written, path)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# rendercast configuration") {
		t.Error("default file missing header comment")
	}
	if !strings.Contains(string(data), "research_interval: 30s") {
		t.Errorf("durations not written as strings:\n%s", data)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *s != *Default() {
		t.Errorf("round trip = %+v, want %+v", s, Default())
	}
}
