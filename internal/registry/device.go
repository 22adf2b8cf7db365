package registry

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Device is a discovered media renderer.
type Device struct {
	// Name is the friendly name from the description (e.g., "Living Room").
	// It is the registry key.
	Name string `json:"name"`

	// Host is the address the device was seen at. It may be empty, an IPv4
	// or IPv6 literal, or (from some discovery paths) a hostname.
	Host string `json:"host"`

	// Location is the device description URL.
	Location string `json:"location"`

	// Headers holds the advertisement headers, keyed by upper-case name.
	Headers map[string]string `json:"headers,omitempty"`

	ModelName        string `json:"modelName,omitempty"`
	ModelNumber      string `json:"modelNumber,omitempty"`
	ModelDescription string `json:"modelDescription,omitempty"`
	SerialNumber     string `json:"serialNumber,omitempty"`

	// Type is the discovery mechanism, "upnp" for SSDP-found devices.
	Type string `json:"type"`

	DiscoveredAt time.Time `json:"discoveredAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// String returns a human-readable representation of the device.
func (d *Device) String() string {
	if d.ModelName != "" {
		return fmt.Sprintf("%s (%s) at %s", d.Name, d.ModelName, d.Host)
	}
	return fmt.Sprintf("%s at %s", d.Name, d.Host)
}

// Header looks up an advertisement header case-insensitively, returning
// an empty string when absent.
func (d *Device) Header(key string) string {
	if d.Headers == nil {
		return ""
	}
	if v, ok := d.Headers[strings.ToUpper(key)]; ok {
		return v
	}
	for k, v := range d.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// IsIPv4 reports whether Host is an IPv4 literal.
func (d *Device) IsIPv4() bool {
	return hostRank(d.Host) == rankIPv4
}

// Address preference, weakest first.
const (
	rankNone = iota
	rankName
	rankIPv6
	rankIPv4
)

func hostRank(host string) int {
	if host == "" {
		return rankNone
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return rankName
	}
	if addr.Is4() || addr.Is4In6() {
		return rankIPv4
	}
	return rankIPv6
}

func cloneHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
