// Package entrygroup implements the entry-group state machine: the unit of
// probing, announcing, and collision handling for a set of records a
// responder asserts as its own (spec §4.6).
//
// A Group moves through Uncommitted, Registering, Established, and
// Collision; probing follows RFC 6762 §8.1 (three probes 250ms apart, each
// followed by a 250ms response window), announcing follows §8.3 (two
// cache-flush-marked multicasts one second apart), and collisions are
// resolved per §8.2.1's lexicographic tie-break, renaming and restarting the
// losing name.
package entrygroup

import (
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/miekg/dns"

	"github.com/avahi-go/mdnscore/altname"
	"github.com/avahi-go/mdnscore/record"
	"github.com/avahi-go/mdnscore/timeevent"
)

// State is one of the entry-group lifecycle states.
type State int

// The entry-group states.
const (
	// Uncommitted is the initial state: records may be added, but nothing
	// has been sent on the wire.
	Uncommitted State = iota

	// Registering is probing: the group is asking "is anyone already using
	// this name?" before it dares assert its records.
	Registering

	// Established is the steady state: the group has announced its records
	// and defends them against late conflicts.
	Established

	// Collision is a transient state entered when a conflicting record is
	// observed; the group picks a new name and returns to Registering.
	Collision
)

// String returns a human-readable name for s.
func (s State) String() string {
	switch s {
	case Uncommitted:
		return "UNCOMMITTED"
	case Registering:
		return "REGISTERING"
	case Established:
		return "ESTABLISHED"
	case Collision:
		return "COLLISION"
	default:
		return "UNKNOWN"
	}
}

const (
	probeInterval   = 250 * time.Millisecond
	probeCount      = 3
	announceDelay   = time.Second
	announceCount   = 2
	collisionPause  = time.Second
)

// Sender transmits a raw mDNS packet (probe, announce, or goodbye) via
// multicast on the group's interface.
type Sender func(*dns.Msg) error

// Renamer returns an alternative to name after a collision, per RFC 6762
// §9's "append a number" convention.
type Renamer func(name string) string

// Group is a set of records registered, probed, announced, and defended as a
// unit.
//
// Group is not safe for concurrent use; it is driven from the single
// per-interface event-loop goroutine.
type Group struct {
	Queue  *timeevent.Queue
	Clock  timeevent.Clock
	Send   Sender
	Rename Renamer
	Logger logging.Logger

	// OnStateChange, if set, is called whenever the group's state changes.
	OnStateChange func(State)

	state      State
	records    []*record.Record
	probesSent int
	handle     *timeevent.Handle
}

// New returns an empty, Uncommitted Group driven by q/clk. Its Rename
// defaults to altname.NextService, the RFC 6762 §9 convention for
// SRV/PTR/TXT service records; callers probing a hostname should use
// NewHostGroup instead.
func New(q *timeevent.Queue, clk timeevent.Clock) *Group {
	return &Group{Queue: q, Clock: clk, state: Uncommitted, Rename: altname.NextService}
}

// NewHostGroup returns a Group pre-loaded with host's address records
// (rrs, typically A/AAAA) and defaulted to the RFC 6762 §9 host-renaming
// convention ("name-2" rather than "name #2") — sugar over New and Add for
// the common case of probing a single hostname.
func NewHostGroup(q *timeevent.Queue, clk timeevent.Clock, rrs ...dns.RR) *Group {
	g := New(q, clk)
	g.Rename = altname.NextHost

	for _, rr := range rrs {
		g.Add(rr)
	}

	return g
}

// State returns the group's current lifecycle state.
func (g *Group) State() State {
	return g.state
}

// Records returns the group's current records (reflecting any rename applied
// by a past collision).
func (g *Group) Records() []*record.Record {
	out := make([]*record.Record, len(g.records))
	copy(out, g.records)
	return out
}

// Add adds rr to the group. It is only valid while the group is
// Uncommitted; to change a committed group's records, Reset it (which
// clears them) and Add the new set.
func (g *Group) Add(rr dns.RR) {
	record.SetCacheFlush(rr, true)
	g.records = append(g.records, record.New(rr))
}

// Commit begins probing the group's records, transitioning it from
// Uncommitted to Registering.
func (g *Group) Commit() {
	if g.state != Uncommitted && g.state != Collision {
		return
	}

	g.state = Registering
	g.probesSent = 0
	g.setState(Registering)

	g.fireProbe(g.Clock.Now())
}

func (g *Group) scheduleProbe(at time.Time) {
	g.handle = g.Queue.Schedule(at, g.fireProbe)
}

func (g *Group) fireProbe(now time.Time) {
	g.sendProbe(now)
	g.probesSent++

	if g.probesSent < probeCount {
		g.scheduleProbe(now.Add(probeInterval))
		return
	}

	// Wait out one final response window after the last probe before
	// declaring victory and announcing.
	g.handle = g.Queue.Schedule(now.Add(probeInterval), g.establish)
}

// establish transitions the group to Established and sends the first
// announcement; it runs once, when the final probe's response window closes
// uncontested. The record is answerable (mdns.Server.ownedRecords consults
// State()) from this point, not only after the second announcement.
func (g *Group) establish(now time.Time) {
	g.state = Established
	g.setState(Established)

	g.sendAnnounce(now)
	g.scheduleAnnounce(now.Add(announceDelay), 1)
}

func (g *Group) sendProbe(now time.Time) {
	if len(g.records) == 0 || g.Send == nil {
		return
	}

	m := &dns.Msg{}
	m.Compress = true

	seen := map[string]bool{}
	for _, r := range g.records {
		name := r.RR.Header().Name
		if seen[name] {
			continue
		}
		seen[name] = true
		m.Question = append(m.Question, dns.Question{
			Name:   name,
			Qtype:  dns.TypeANY,
			Qclass: dns.ClassINET,
		})
	}

	for _, r := range g.records {
		m.Ns = append(m.Ns, r.RR)
	}

	if err := g.Send(m); err != nil && g.Logger != nil {
		logging.Log(g.Logger, "unable to send probe: %s", err)
	}
}

// scheduleAnnounce schedules the (sent+1)'th announcement; the group is
// already Established by the time this is first called (see establish).
func (g *Group) scheduleAnnounce(at time.Time, sent int) {
	g.handle = g.Queue.Schedule(at, func(now time.Time) {
		g.sendAnnounce(now)

		if sent+1 < announceCount {
			g.scheduleAnnounce(now.Add(announceDelay), sent+1)
		}
	})
}

func (g *Group) sendAnnounce(now time.Time) {
	if len(g.records) == 0 || g.Send == nil {
		return
	}

	m := &dns.Msg{}
	m.Response = true
	m.Authoritative = true
	m.Compress = true

	for _, r := range g.records {
		m.Answer = append(m.Answer, r.RR)
	}

	if err := g.Send(m); err != nil && g.Logger != nil {
		logging.Log(g.Logger, "unable to send announcement: %s", err)
	}
}

// Observe reports a record rr seen on the wire (from a peer's probe or
// response) at time now. If rr conflicts with one of the group's own
// records, per the RFC 6762 §8.2.1 tie-break, the conflicting name is
// renamed and the group restarts probing.
func (g *Group) Observe(rr dns.RR, now time.Time) {
	if g.state != Registering && g.state != Established {
		return
	}

	peer := record.New(rr)
	key := peer.Key()

	for _, own := range g.records {
		if own.Key() != key || own.Equal(peer) {
			continue
		}

		if peer.Outranks(own) {
			g.resolveCollision(own.RR.Header().Name, now)
			return
		}
	}
}

// resolveCollision renames every record sharing name and restarts probing
// after a brief pause, per RFC 6762 §9.
func (g *Group) resolveCollision(name string, now time.Time) {
	if g.handle != nil {
		g.Queue.Cancel(g.handle)
		g.handle = nil
	}

	g.state = Collision
	g.setState(Collision)

	if g.Rename != nil {
		next := g.Rename(name)
		for i, r := range g.records {
			if r.RR.Header().Name != name {
				continue
			}
			rr := dns.Copy(r.RR)
			rr.Header().Name = next
			g.records[i] = record.New(rr)
		}
	}

	g.probesSent = 0
	g.handle = g.Queue.Schedule(now.Add(collisionPause), func(t time.Time) {
		g.state = Registering
		g.setState(Registering)
		g.scheduleProbe(t)
	})
}

// Reset withdraws the group's records with a goodbye packet and returns it
// to Uncommitted, so that its records can be changed before re-committing.
func (g *Group) Reset() {
	g.goodbye()
	g.cancelTimers()
	g.records = nil
	g.state = Uncommitted
	g.setState(Uncommitted)
}

// Free withdraws the group's records with a goodbye packet and stops it
// permanently.
func (g *Group) Free() {
	g.goodbye()
	g.cancelTimers()
	g.records = nil
}

func (g *Group) goodbye() {
	if g.state != Established || len(g.records) == 0 || g.Send == nil {
		return
	}

	m := &dns.Msg{}
	m.Response = true
	m.Authoritative = true

	for _, r := range g.records {
		m.Answer = append(m.Answer, r.Goodbye().RR)
	}

	if err := g.Send(m); err != nil && g.Logger != nil {
		logging.Log(g.Logger, "unable to send goodbye: %s", err)
	}
}

func (g *Group) cancelTimers() {
	if g.handle != nil {
		g.Queue.Cancel(g.handle)
		g.handle = nil
	}
}

func (g *Group) setState(s State) {
	if g.OnStateChange != nil {
		g.OnStateChange(s)
	}
}
