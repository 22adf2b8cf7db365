package portalloc

import (
	"context"
	"fmt"
	"net"
	"strconv"
)

// Prober confirms that the operating system will bind (host, port).
// A zero port asks the OS to pick one; the bound port is returned.
type Prober interface {
	Probe(ctx context.Context, host string, port int) (int, error)
}

// TCPProber binds a TCP listener and closes it straight away.
// The result is a point-in-time answer; nothing stops another process from
// taking the port between the probe and the caller's own bind.
type TCPProber struct {
	ListenConfig net.ListenConfig
}

// Probe implements Prober. An empty host binds the wildcard address.
func (p *TCPProber) Probe(ctx context.Context, host string, port int) (int, error) {
	ln, err := p.ListenConfig.Listen(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return 0, err
	}

	addr, ok := ln.Addr().(*net.TCPAddr)
	cerr := ln.Close()
	if !ok {
		return 0, fmt.Errorf("unexpected listener address %v", ln.Addr())
	}
	if cerr != nil {
		return 0, cerr
	}
	return addr.Port, nil
}

// LocalHosts returns the addresses a "generic" port must be free on: the
// unspecified host, the IPv4 wildcard and every configured interface address.
func LocalHosts() ([]string, error) {
	hosts := []string{"", "0.0.0.0"}
	seen := map[string]bool{"": true, "0.0.0.0": true}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return hosts, fmt.Errorf("failed to list interface addresses: %w", err)
	}

	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil {
			continue
		}
		s := ip.String()
		if !seen[s] {
			seen[s] = true
			hosts = append(hosts, s)
		}
	}

	return hosts, nil
}
