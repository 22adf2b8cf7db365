package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/rendercast/internal/logging"
)

const (
	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultBrowseTimeout bounds one Browse call.
	DefaultBrowseTimeout = 10 * time.Second

	// DefaultPort is used when an entry advertises no port.
	DefaultPort = 80

	// descriptionPathKey is the TXT key naming the description path.
	descriptionPathKey = "path"
)

// Candidate is an mDNS-found service that might be a renderer.
type Candidate struct {
	Name     string
	Host     string
	Location string
	Metadata map[string]string
}

// Validator admits candidates; *Session implements it.
type Validator interface {
	Validate(ctx context.Context, name, host, location string) (bool, error)
}

// MDNSSource browses a zeroconf service type and hands every resolvable
// entry to a Validator. It complements SSDP for renderers that announce
// over mDNS only.
type MDNSSource struct {
	// Service is the service type to browse, e.g. "_dlna._tcp".
	Service string

	// Timeout is the maximum browse duration.
	Timeout time.Duration
}

// NewMDNSSource creates a source for service with default settings.
func NewMDNSSource(service string) *MDNSSource {
	return &MDNSSource{
		Service: service,
		Timeout: DefaultBrowseTimeout,
	}
}

// Browse runs until ctx is done or Timeout elapses, validating each entry.
// It returns the number of candidates the validator accepted.
func (m *MDNSSource) Browse(ctx context.Context, v Validator) (int, error) {
	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan int, 1)

	go func() {
		accepted := 0
		defer func() { done <- accepted }()
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if validateEntry(ctx, v, entry) {
					accepted++
				}
			}
		}
	}()

	if err := resolver.Browse(ctx, m.Service, ServiceDomain, entries); err != nil {
		return 0, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	return <-done, nil
}

func validateEntry(ctx context.Context, v Validator, entry *zeroconf.ServiceEntry) bool {
	c := parseServiceEntry(entry)
	if c == nil {
		return false
	}
	ok, err := v.Validate(ctx, c.Name, c.Host, c.Location)
	if err != nil {
		logging.Debug("mDNS candidate rejected",
			zap.String("name", c.Name),
			zap.String("location", c.Location),
			zap.Error(err),
		)
		return false
	}
	return ok
}

// parseServiceEntry converts a zeroconf entry to a Candidate, preferring
// an IPv4 address. Entries without an instance name or address are nil.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Candidate {
	if entry == nil || entry.Instance == "" {
		return nil
	}

	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	path := metadata[descriptionPathKey]
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return &Candidate{
		Name:     entry.Instance,
		Host:     ip,
		Location: "http://" + net.JoinHostPort(ip, strconv.Itoa(port)) + path,
		Metadata: metadata,
	}
}
