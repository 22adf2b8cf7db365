package descriptor

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Descriptor is the subset of a UPnP device description used by discovery
// and by the media-control client. Absent elements are empty strings.
type Descriptor struct {
	URLBase          string
	DeviceType       string
	FriendlyName     string
	Manufacturer     string
	ModelName        string
	ModelNumber      string
	ModelDescription string
	SerialNumber     string
	UDN              string
	Services         []Service
}

// Service is one entry of a device's serviceList.
type Service struct {
	Type        string `xml:"serviceType"`
	ID          string `xml:"serviceId"`
	SCPDURL     string `xml:"SCPDURL"`
	ControlURL  string `xml:"controlURL"`
	EventSubURL string `xml:"eventSubURL"`
}

type xmlDevice struct {
	DeviceType       string      `xml:"deviceType"`
	FriendlyName     string      `xml:"friendlyName"`
	Manufacturer     string      `xml:"manufacturer"`
	ModelName        string      `xml:"modelName"`
	ModelNumber      string      `xml:"modelNumber"`
	ModelDescription string      `xml:"modelDescription"`
	SerialNumber     string      `xml:"serialNumber"`
	UDN              string      `xml:"UDN"`
	Services         []Service   `xml:"serviceList>service"`
	Devices          []xmlDevice `xml:"deviceList>device"`
}

type xmlRoot struct {
	URLBase string    `xml:"URLBase"`
	Device  xmlDevice `xml:"device"`
}

// Parse decodes a device description document. Services of embedded
// devices are flattened into the root device's Services.
func Parse(r io.Reader) (*Descriptor, error) {
	var root xmlRoot
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("decode device description: %w", err)
	}

	d := root.Device
	desc := &Descriptor{
		URLBase:          strings.TrimSpace(root.URLBase),
		DeviceType:       strings.TrimSpace(d.DeviceType),
		FriendlyName:     strings.TrimSpace(d.FriendlyName),
		Manufacturer:     strings.TrimSpace(d.Manufacturer),
		ModelName:        strings.TrimSpace(d.ModelName),
		ModelNumber:      strings.TrimSpace(d.ModelNumber),
		ModelDescription: strings.TrimSpace(d.ModelDescription),
		SerialNumber:     strings.TrimSpace(d.SerialNumber),
		UDN:              strings.TrimSpace(d.UDN),
	}
	desc.Services = collectServices(d, nil)
	return desc, nil
}

func collectServices(d xmlDevice, out []Service) []Service {
	for _, s := range d.Services {
		s.Type = strings.TrimSpace(s.Type)
		s.ID = strings.TrimSpace(s.ID)
		s.SCPDURL = strings.TrimSpace(s.SCPDURL)
		s.ControlURL = strings.TrimSpace(s.ControlURL)
		s.EventSubURL = strings.TrimSpace(s.EventSubURL)
		out = append(out, s)
	}
	for _, child := range d.Devices {
		out = collectServices(child, out)
	}
	return out
}

// Service returns the first service whose type starts with typePrefix,
// e.g. "urn:schemas-upnp-org:service:AVTransport:".
func (d *Descriptor) Service(typePrefix string) (Service, bool) {
	for _, s := range d.Services {
		if strings.HasPrefix(s.Type, typePrefix) {
			return s, true
		}
	}
	return Service{}, false
}

// ResolveURL resolves a (possibly relative) service URL against the
// description's URLBase, or against location when URLBase is absent.
func (d *Descriptor) ResolveURL(location, ref string) (string, error) {
	base := location
	if d != nil && d.URLBase != "" {
		base = d.URLBase
	}
	return ResolveURL(base, ref)
}

// ResolveURL resolves ref against base.
func ResolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}
