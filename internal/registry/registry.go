// Package registry deduplicates discovered renderers by friendly name.
//
// Several discovery paths can report the same device under different
// addresses. The registry keeps one entry per name and replaces its
// address only with a strictly preferred one (IPv4 over IPv6 over a
// hostname over nothing). Every new entry and every upgrade is delivered
// to subscribers exactly once. Entries without a host are kept but not
// delivered until an upgrade supplies one.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/muurk/rendercast/internal/descriptor"
	"github.com/muurk/rendercast/internal/logging"
	"github.com/muurk/rendercast/internal/metrics"
)

// Outcome is the result of observing a device.
type Outcome int

const (
	// Suppressed means the observation changed nothing.
	Suppressed Outcome = iota
	// Created means a new entry was stored and delivered.
	Created
	// Upgraded means an existing entry got a better address and was
	// delivered again.
	Upgraded
	// Pending means a new entry was stored without a host and was not
	// delivered.
	Pending
)

func (o Outcome) String() string {
	switch o {
	case Suppressed:
		return "suppressed"
	case Created:
		return "new"
	case Upgraded:
		return "upgrade"
	case Pending:
		return "pending"
	default:
		return "unknown"
	}
}

// Emitted reports whether subscribers were notified.
func (o Outcome) Emitted() bool {
	return o == Created || o == Upgraded
}

type entry struct {
	device    Device
	delivered bool
}

// Registry is safe for concurrent use. Subscribers are called without the
// registry lock held, one delivery at a time, in the order the registry
// changed. A subscriber must not observe into the registry it is called
// from.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	subs    map[int]func(Device)
	nextSub int
	issued  uint64

	turn      sync.Mutex
	turnCond  *sync.Cond
	completed uint64

	now func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		subs:    make(map[int]func(Device)),
		now:     time.Now,
	}
	r.turnCond = sync.NewCond(&r.turn)
	return r
}

// Observe records a sighting of name at host.
func (r *Registry) Observe(name, host, location string, headers map[string]string) Outcome {
	return r.observe(Device{
		Name:     name,
		Host:     host,
		Location: location,
		Headers:  cloneHeaders(headers),
		Type:     "upnp",
	})
}

// ObserveDescriptor records a sighting using the model fields of a fetched
// description.
func (r *Registry) ObserveDescriptor(desc *descriptor.Descriptor, host, location string, headers map[string]string) Outcome {
	return r.observe(Device{
		Name:             desc.FriendlyName,
		Host:             host,
		Location:         location,
		Headers:          cloneHeaders(headers),
		ModelName:        desc.ModelName,
		ModelNumber:      desc.ModelNumber,
		ModelDescription: desc.ModelDescription,
		SerialNumber:     desc.SerialNumber,
		Type:             "upnp",
	})
}

func (r *Registry) observe(d Device) Outcome {
	if d.Name == "" {
		return Suppressed
	}

	r.mu.Lock()
	now := r.now()
	e, ok := r.entries[d.Name]

	var outcome Outcome
	switch {
	case !ok:
		d.DiscoveredAt, d.UpdatedAt = now, now
		e = &entry{device: d}
		r.entries[d.Name] = e
		metrics.DevicesKnown.Set(float64(len(r.entries)))
		outcome = Created

	case preferred(e.device.Host, d.Host):
		prev := e.device
		e.device.Host = d.Host
		e.device.Location = d.Location
		e.device.Headers = d.Headers
		mergeModel(&e.device, prev, d)
		e.device.UpdatedAt = now
		e.delivered = false
		outcome = Upgraded

	default:
		r.mu.Unlock()
		return Suppressed
	}

	if e.device.Host == "" {
		r.mu.Unlock()
		return Pending
	}

	e.delivered = true
	dev := e.device
	dev.Headers = cloneHeaders(e.device.Headers)
	subs := r.subscribersLocked()
	r.issued++
	ticket := r.issued
	r.mu.Unlock()

	r.waitTurn(ticket)
	defer r.finishTurn(ticket)

	metrics.DevicesDelivered.WithLabelValues(outcome.String()).Inc()
	logging.LogDeviceDelivered(dev.Name, dev.Host, outcome.String())
	for _, fn := range subs {
		fn(dev)
	}
	return outcome
}

// waitTurn blocks until every delivery issued before ticket has finished.
func (r *Registry) waitTurn(ticket uint64) {
	r.turn.Lock()
	for r.completed != ticket-1 {
		r.turnCond.Wait()
	}
	r.turn.Unlock()
}

func (r *Registry) finishTurn(ticket uint64) {
	r.turn.Lock()
	r.completed = ticket
	r.turnCond.Broadcast()
	r.turn.Unlock()
}

// preferred reports whether candidate should replace current. Replacement
// only ever moves to a strictly better address class, and an IPv4 host is
// final. A different host of the same class is not a replacement.
func preferred(current, candidate string) bool {
	cur, next := hostRank(current), hostRank(candidate)
	return cur < rankIPv4 && next > cur
}

func mergeModel(dst *Device, prev, next Device) {
	pick := func(a, b string) string {
		if b != "" {
			return b
		}
		return a
	}
	dst.ModelName = pick(prev.ModelName, next.ModelName)
	dst.ModelNumber = pick(prev.ModelNumber, next.ModelNumber)
	dst.ModelDescription = pick(prev.ModelDescription, next.ModelDescription)
	dst.SerialNumber = pick(prev.SerialNumber, next.SerialNumber)
}

func (r *Registry) subscribersLocked() []func(Device) {
	ids := make([]int, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Device), 0, len(ids))
	for _, id := range ids {
		out = append(out, r.subs[id])
	}
	return out
}

// Subscribe registers fn for every delivered device. The returned function
// removes the subscription.
func (r *Registry) Subscribe(fn func(Device)) (cancel func()) {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// Devices returns the delivered devices sorted by name.
func (r *Registry) Devices() []Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Device, 0, len(r.entries))
	for _, e := range r.entries {
		if !e.delivered {
			continue
		}
		d := e.device
		d.Headers = cloneHeaders(e.device.Headers)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns the entry for name, delivered or not.
func (r *Registry) Get(name string) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return Device{}, false
	}
	d := e.device
	d.Headers = cloneHeaders(e.device.Headers)
	return d, true
}

// Has reports whether name has an entry.
func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[name]
	return ok
}

// Len returns the number of entries, including undelivered ones.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Reset drops every entry. Subscriptions are kept.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*entry)
	metrics.DevicesKnown.Set(0)
}
