package discovery

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Advertisement is a search response or NOTIFY as delivered by a Transport.
type Advertisement struct {
	// Headers are keyed by upper-case header name (LOCATION, USN, ST, NT).
	Headers map[string]string

	// Remote is the sender's address without port. It may be empty when
	// the transport cannot tell.
	Remote string
}

// Location returns the LOCATION header.
func (a Advertisement) Location() string {
	return a.Headers["LOCATION"]
}

// Type returns the advertised device type: ST for search responses, NT
// for notifications.
func (a Advertisement) Type() string {
	if st, ok := a.Headers["ST"]; ok {
		return st
	}
	return a.Headers["NT"]
}

// Handler receives advertisements. It may be called from any goroutine.
type Handler func(Advertisement)

// Transport is the SSDP collaborator. Start binds the responder socket to
// port and begins delivering to handler. Search issues one discovery round
// and returns once its response window has closed.
type Transport interface {
	Start(ctx context.Context, port int, handler Handler) error
	Search(target string) error
	Close() error
}

// headerMap flattens h into upper-case keys, keeping the first value.
func headerMap(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[strings.ToUpper(k)] = v[0]
		}
	}
	return out
}

// hostFromAddr returns the IP of a UDP source address.
func hostFromAddr(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if udp, ok := addr.(*net.UDPAddr); ok {
		return udp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return ""
	}
	return host
}

// hostFromLocation returns the host part of a description URL.
func hostFromLocation(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// isUnsupportedLocation reports locations the fetcher cannot use: empty,
// or served over TLS.
func isUnsupportedLocation(location string) bool {
	if location == "" {
		return true
	}
	return strings.HasPrefix(strings.ToLower(location), "https://")
}
