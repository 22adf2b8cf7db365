package main

import (
	"bytes"
	"errors"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/muurk/rendercast/internal/config"
	"github.com/muurk/rendercast/internal/discovery"
	"github.com/muurk/rendercast/internal/portalloc"
	"github.com/muurk/rendercast/internal/registry"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		value   string
		want    []int
		wantErr bool
	}{
		{value: "9000-9002", want: []int{9000, 9001, 9002}},
		{value: " 2000 - 2000 ", want: []int{2000}},
		{value: "9000", wantErr: true},
		{value: "abc-9000", wantErr: true},
		{value: "9000-x", wantErr: true},
		{value: "80-90", wantErr: true},
		{value: "5000-4000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := parseRange(tt.value)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseRange(%q) = %v, want error", tt.value, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRange(%q) error = %v", tt.value, err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("parseRange(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseRange_BoundError(t *testing.T) {
	_, err := parseRange("1000-2000")
	var rangeErr *portalloc.RangeError
	if !errors.As(err, &rangeErr) || rangeErr.Bound != "from" {
		t.Errorf("parseRange() error = %v, want RangeError on from", err)
	}
}

func TestSessionOptionsFromSettings(t *testing.T) {
	s := config.Default()
	s.Fetch.Attempts = 5
	s.Fetch.RetryDelay = 250 * time.Millisecond
	s.Ports.BindHost = "127.0.0.1"
	s.Discovery.ResearchInterval = 0

	alloc := newAllocator(s)
	defer alloc.Locks().Close()

	opts := sessionOptions(s, alloc, nil)
	if opts.Target != s.Discovery.SearchTarget || opts.BindHost != "127.0.0.1" || opts.Interval != 0 {
		t.Errorf("sessionOptions() = %+v", opts)
	}
	if opts.Allocator != alloc {
		t.Error("sessionOptions() did not use the given allocator")
	}
	if opts.OnError == nil {
		t.Error("sessionOptions() left OnError nil")
	}

	f := newFetcher(s)
	if f.Attempts != 5 || f.RetryDelay != 250*time.Millisecond {
		t.Errorf("newFetcher() = attempts %d delay %v", f.Attempts, f.RetryDelay)
	}
	if alloc.Locks().Window() != s.Ports.LockWindow {
		t.Errorf("lock window = %v, want %v", alloc.Locks().Window(), s.Ports.LockWindow)
	}
}

func TestTransportFactory(t *testing.T) {
	s := config.Default()
	s.Discovery.ListenNotify = true
	s.Discovery.SearchWait = 4 * time.Second

	tr, ok := newTransportFactory(s)().(*discovery.SSDPTransport)
	if !ok {
		t.Fatal("factory did not build an SSDPTransport")
	}
	if !tr.ListenNotify || tr.Wait != 4*time.Second || tr.Target != s.Discovery.SearchTarget {
		t.Errorf("transport = %+v", tr)
	}
}

func TestServerConfig(t *testing.T) {
	s := config.Default()
	s.Server.Port = 8089
	s.Server.CertFile, s.Server.KeyFile = "c.pem", "k.pem"

	cfg := serverConfig(s)
	if cfg.Port != 8089 || cfg.CertPath != "c.pem" || cfg.KeyPath != "k.pem" {
		t.Errorf("serverConfig() = %+v", cfg)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("writeJSON(nil) = %q, want []", buf.String())
	}

	buf.Reset()
	if err := writeJSON(&buf, []registry.Device{{Name: "Kitchen", Host: "192.168.1.30"}}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"name": "Kitchen"`) {
		t.Errorf("writeJSON() = %s", buf.String())
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	if !strings.HasPrefix(buf.String(), "rendercast ") {
		t.Errorf("version output = %q", buf.String())
	}
}

func TestPortCommand_CountDistinct(t *testing.T) {
	s := config.Default()
	settings = s
	portPorts, portRange, portExclude, portHost, portCount = nil, "", nil, "127.0.0.1", 3
	t.Cleanup(func() { portHost, portCount = "", 1 })

	var buf bytes.Buffer
	portCmd.SetOut(&buf)
	portCmd.SetContext(t.Context())
	if err := runPort(portCmd, nil); err != nil {
		t.Fatalf("runPort() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Ports allocated") {
		t.Errorf("output = %q, want allocation summary", buf.String())
	}
}

func TestPortCommand_ExplicitPortLockedOnSecondAllocation(t *testing.T) {
	scratch := portalloc.New(portalloc.Options{})
	defer scratch.Locks().Close()
	free, err := scratch.Allocate(t.Context(), portalloc.Request{Host: "127.0.0.1"})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	s := config.Default()
	settings = s
	portPorts, portRange, portExclude, portHost, portCount = []int{free}, "", nil, "127.0.0.1", 2
	t.Cleanup(func() { portPorts, portHost, portCount = nil, "", 1 })

	var buf bytes.Buffer
	portCmd.SetOut(&buf)
	portCmd.SetContext(t.Context())
	err = runPort(portCmd, nil)
	if !portalloc.IsLocked(err) {
		t.Fatalf("runPort() error = %v, want locked", err)
	}
	if !strings.Contains(buf.String(), strconv.Itoa(free)) {
		t.Errorf("output = %q, want first allocation %d listed", buf.String(), free)
	}
}
