package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/koron/go-ssdp"
	"go.uber.org/zap"

	"github.com/muurk/rendercast/internal/logging"
)

const (
	// MediaRendererType is the default search target.
	MediaRendererType = "urn:schemas-upnp-org:device:MediaRenderer:1"

	// DefaultSearchWait is the response collection window of one search.
	DefaultSearchWait = 2 * time.Second
)

var ssdpLogOnce sync.Once

// SSDPTransport implements Transport on github.com/koron/go-ssdp.
type SSDPTransport struct {
	// Wait is the MX / response window per search.
	Wait time.Duration

	// ListenNotify also delivers unsolicited NOTIFY ssdp:alive messages.
	ListenNotify bool

	// Target filters NOTIFY messages; searches carry their own target.
	Target string

	mu      sync.Mutex
	search  sync.Mutex
	addr    string
	handler Handler
	monitor *ssdp.Monitor
	closed  bool
}

// NewSSDPTransport creates a transport with the default search window.
func NewSSDPTransport() *SSDPTransport {
	return &SSDPTransport{Wait: DefaultSearchWait, Target: MediaRendererType}
}

// Start implements Transport. Search responses are received on port.
func (t *SSDPTransport) Start(_ context.Context, port int, handler Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrStopped
	}
	if t.handler != nil {
		return ErrAlreadyStarted
	}

	ssdpLogOnce.Do(func() {
		ssdp.Logger = zap.NewStdLog(logging.GetLogger().Named("ssdp"))
	})

	t.addr = net.JoinHostPort("", strconv.Itoa(port))
	t.handler = handler

	if t.ListenNotify {
		m := &ssdp.Monitor{Alive: t.onAlive}
		if err := m.Start(); err != nil {
			return fmt.Errorf("start ssdp monitor: %w", err)
		}
		t.monitor = m
	}
	return nil
}

// Search implements Transport. Searches are serialized because they share
// the responder port.
func (t *SSDPTransport) Search(target string) error {
	t.mu.Lock()
	addr, handler, closed := t.addr, t.handler, t.closed
	t.mu.Unlock()

	if closed {
		return ErrStopped
	}
	if handler == nil {
		return fmt.Errorf("ssdp search before start")
	}

	t.search.Lock()
	defer t.search.Unlock()

	wait := int(t.Wait / time.Second)
	if wait < 1 {
		wait = 1
	}

	services, err := ssdp.Search(target, wait, addr)
	if err != nil {
		return fmt.Errorf("ssdp search %s: %w", target, err)
	}

	for _, svc := range services {
		headers := headerMap(svc.Header())
		setDefault(headers, "LOCATION", svc.Location)
		setDefault(headers, "USN", svc.USN)
		setDefault(headers, "ST", svc.Type)
		repairDeviceType(headers, target)

		if headers["ST"] != target {
			continue
		}
		logging.LogAdvertisement(svc.Location, svc.USN, hostFromLocation(svc.Location))
		handler(Advertisement{Headers: headers, Remote: hostFromLocation(svc.Location)})
	}
	return nil
}

func (t *SSDPTransport) onAlive(m *ssdp.AliveMessage) {
	t.mu.Lock()
	handler, closed := t.handler, t.closed
	t.mu.Unlock()
	if closed || handler == nil {
		return
	}

	headers := headerMap(m.Header())
	setDefault(headers, "LOCATION", m.Location)
	setDefault(headers, "USN", m.USN)
	setDefault(headers, "NT", m.Type)
	repairDeviceType(headers, t.Target)

	if t.Target != "" && headers["NT"] != t.Target {
		return
	}

	remote := hostFromAddr(m.From)
	logging.LogAdvertisement(m.Location, m.USN, remote)
	handler(Advertisement{Headers: headers, Remote: remote})
}

// Close implements Transport.
func (t *SSDPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.monitor != nil {
		err := t.monitor.Close()
		t.monitor = nil
		if err != nil {
			return fmt.Errorf("close ssdp monitor: %w", err)
		}
	}
	return nil
}

func setDefault(h map[string]string, key, value string) {
	if _, ok := h[key]; !ok && value != "" {
		h[key] = value
	}
}

// repairDeviceType rewrites ST/NT to target when a device advertises a
// different type string but its USN names the target's device kind.
// Some renderers answer a MediaRenderer search with their root device type.
func repairDeviceType(h map[string]string, target string) {
	kind := deviceKind(target)
	if kind == "" {
		return
	}
	for _, key := range []string{"ST", "NT"} {
		v, ok := h[key]
		if !ok || v == target {
			continue
		}
		if strings.Contains(h["USN"], kind) || strings.Contains(v, kind) {
			h[key] = target
		}
	}
}

// deviceKind extracts "MediaRenderer" from
// "urn:schemas-upnp-org:device:MediaRenderer:1".
func deviceKind(target string) string {
	parts := strings.Split(target, ":")
	for i, p := range parts {
		if p == "device" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}
