// Package discovery finds UPnP media renderers on the local network.
//
// A Session owns one discovery lifetime. Start allocates a responder port
// from portalloc, starts the SSDP transport on it and searches for the
// target device type. Each advertisement with a usable LOCATION is fetched
// at most once at a time; successful fetches are fed to the registry,
// which delivers new devices and address upgrades to subscribers.
//
// # Lifecycle
//
//	Idle --Start--> Searching --Stop--> Stopped
//
// Update re-runs the search while Searching. Stop is terminal: fetches
// still in flight finish in the background and their results are dropped,
// and the registry is cleared.
//
// # Advertisements
//
// Responses without LOCATION, or whose LOCATION is https, are ignored.
// The transport rewrites ST/NT for devices that advertise a related type
// but identify as the target kind in their USN.
//
// # mDNS
//
// MDNSSource browses an optional zeroconf service type and passes each
// entry to Session.Validate, which admits it once its location answers
// HTTP 200.
package discovery
