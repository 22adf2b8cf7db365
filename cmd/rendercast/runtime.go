package main

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/rendercast/internal/config"
	"github.com/muurk/rendercast/internal/descriptor"
	"github.com/muurk/rendercast/internal/discovery"
	"github.com/muurk/rendercast/internal/logging"
	"github.com/muurk/rendercast/internal/portalloc"
	"github.com/muurk/rendercast/internal/server"
)

// newAllocator builds the process allocator from the ports settings.
func newAllocator(s *config.Settings) *portalloc.Allocator {
	return portalloc.New(portalloc.Options{Window: s.Ports.LockWindow})
}

// newFetcher builds a description fetcher from the fetch settings.
func newFetcher(s *config.Settings) *descriptor.Fetcher {
	f := descriptor.NewFetcher(descriptor.NewHTTPGetter(s.Fetch.Timeout))
	f.Attempts = s.Fetch.Attempts
	f.RetryDelay = s.Fetch.RetryDelay
	return f
}

// newTransportFactory returns a constructor for SSDP transports configured
// from the discovery settings.
func newTransportFactory(s *config.Settings) func() discovery.Transport {
	d := s.Discovery
	return func() discovery.Transport {
		t := discovery.NewSSDPTransport()
		t.Target = d.SearchTarget
		t.Wait = d.SearchWait
		t.ListenNotify = d.ListenNotify
		return t
	}
}

// sessionOptions maps settings onto discovery options. onError may be nil.
func sessionOptions(s *config.Settings, alloc *portalloc.Allocator, onError func(error)) discovery.Options {
	if onError == nil {
		onError = func(err error) {
			logging.Debug("Discovery error", zap.Error(err))
		}
	}
	return discovery.Options{
		Target:    s.Discovery.SearchTarget,
		BindHost:  s.Ports.BindHost,
		Interval:  s.Discovery.ResearchInterval,
		Fetcher:   newFetcher(s),
		Allocator: alloc,
		Validator: descriptor.NewHTTPGetter(s.Fetch.Timeout),
		OnError:   onError,
	}
}

// newService builds the supervised discovery service, with the mDNS
// fallback when a service type is configured.
func newService(s *config.Settings, alloc *portalloc.Allocator, onError func(error)) *discovery.Service {
	var mdns *discovery.MDNSSource
	if s.Discovery.MDNSService != "" {
		mdns = discovery.NewMDNSSource(s.Discovery.MDNSService)
	}
	return discovery.NewService(sessionOptions(s, alloc, onError), newTransportFactory(s), mdns)
}

func serverConfig(s *config.Settings) server.Config {
	return server.Config{
		Host:     s.Server.Host,
		Port:     s.Server.Port,
		CertPath: s.Server.CertFile,
		KeyPath:  s.Server.KeyFile,
	}
}

// parseRange parses "FROM-TO" into the ports of that range.
func parseRange(value string) ([]int, error) {
	from, to, ok := strings.Cut(value, "-")
	if !ok {
		return nil, errors.New("range must be FROM-TO")
	}
	lo, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return nil, fmt.Errorf("range start %q: %w", from, err)
	}
	hi, err := strconv.Atoi(strings.TrimSpace(to))
	if err != nil {
		return nil, fmt.Errorf("range end %q: %w", to, err)
	}

	seq, err := portalloc.Range(lo, hi)
	if err != nil {
		return nil, err
	}

	return slices.Collect(seq), nil
}
