package config

import (
	"errors"
	"fmt"
	"time"
)

// CurrentVersion is the only supported settings schema.
const CurrentVersion = 1

// Settings is the rendercast configuration file.
type Settings struct {
	Version   int       `yaml:"version"`
	LogLevel  string    `yaml:"log_level"`
	Discovery Discovery `yaml:"discovery"`
	Fetch     Fetch     `yaml:"fetch"`
	Ports     Ports     `yaml:"ports"`
	Server    Server    `yaml:"server"`
}

// Discovery configures the discovery session.
type Discovery struct {
	SearchTarget     string        `yaml:"search_target"`
	SearchWait       time.Duration `yaml:"search_wait"`
	ResearchInterval time.Duration `yaml:"research_interval"` // 0 disables periodic search
	ListenNotify     bool          `yaml:"listen_notify"`
	MDNSService      string        `yaml:"mdns_service"` // empty disables the mDNS fallback
}

// Fetch configures description fetching.
type Fetch struct {
	Attempts   int           `yaml:"attempts"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Ports configures the port allocator.
type Ports struct {
	LockWindow time.Duration `yaml:"lock_window"`
	BindHost   string        `yaml:"bind_host"`
}

// Server configures the event server.
type Server struct {
	Port     int    `yaml:"port"` // 0 picks a free port
	Host     string `yaml:"host"`
	CertFile string `yaml:"cert_file,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty"`
}

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		Version: CurrentVersion,
		Discovery: Discovery{
			SearchTarget:     "urn:schemas-upnp-org:device:MediaRenderer:1",
			SearchWait:       2 * time.Second,
			ResearchInterval: 30 * time.Second,
		},
		Fetch: Fetch{
			Attempts:   3,
			RetryDelay: 1 * time.Second,
			Timeout:    5 * time.Second,
		},
		Ports: Ports{
			LockWindow: 15 * time.Second,
		},
	}
}

// applyDefaults fills zero values that have a non-zero default. Zero
// research_interval and server.port are meaningful and left alone.
func (s *Settings) applyDefaults() {
	d := Default()
	if s.Version == 0 {
		s.Version = d.Version
	}
	if s.Discovery.SearchTarget == "" {
		s.Discovery.SearchTarget = d.Discovery.SearchTarget
	}
	if s.Discovery.SearchWait == 0 {
		s.Discovery.SearchWait = d.Discovery.SearchWait
	}
	if s.Fetch.Attempts == 0 {
		s.Fetch.Attempts = d.Fetch.Attempts
	}
	if s.Fetch.RetryDelay == 0 {
		s.Fetch.RetryDelay = d.Fetch.RetryDelay
	}
	if s.Fetch.Timeout == 0 {
		s.Fetch.Timeout = d.Fetch.Timeout
	}
	if s.Ports.LockWindow == 0 {
		s.Ports.LockWindow = d.Ports.LockWindow
	}
}

// Validate reports every invalid field at once.
func (s *Settings) Validate() error {
	var errs []error

	if s.Version != CurrentVersion {
		errs = append(errs, fmt.Errorf("unsupported config version: %d (expected %d)", s.Version, CurrentVersion))
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"discovery.search_wait", s.Discovery.SearchWait},
		{"discovery.research_interval", s.Discovery.ResearchInterval},
		{"fetch.retry_delay", s.Fetch.RetryDelay},
		{"fetch.timeout", s.Fetch.Timeout},
		{"ports.lock_window", s.Ports.LockWindow},
	}
	for _, f := range durations {
		if f.d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", f.name, f.d))
		}
	}

	if s.Fetch.Attempts < 1 {
		errs = append(errs, fmt.Errorf("fetch.attempts must be at least 1, got %d", s.Fetch.Attempts))
	}
	if s.Server.Port < 0 || s.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 0 and 65535, got %d", s.Server.Port))
	}

	if (s.Server.CertFile == "") != (s.Server.KeyFile == "") {
		errs = append(errs, errors.New("server.cert_file and server.key_file must be set together"))
	}

	switch s.LogLevel {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", s.LogLevel))
	}

	return errors.Join(errs...)
}
