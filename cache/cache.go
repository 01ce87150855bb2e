// Package cache implements the per-interface record cache: the set of
// records observed on the link, with RFC 6762 TTL expiry, cache-flush
// ("RRset exclusivity") handling, and goodbye processing (spec §4.3).
package cache

import (
	"net"
	"time"

	"github.com/dogmatiq/dodeca/logging"

	"github.com/avahi-go/mdnscore/record"
	"github.com/avahi-go/mdnscore/timeevent"
)

// maintenanceFractions are the points in a record's TTL, expressed as a
// fraction, at which the cache asks for an opportunistic refresh before the
// record expires (RFC 6762 §5.2).
var maintenanceFractions = []float64{0.80, 0.85, 0.90, 0.95}

// flushDelay is how long a cache-flush-marked record is kept around before
// being evicted if it is not re-asserted (RFC 6762 §10.2).
const flushDelay = time.Second

// goodbyeDelay is how long a record announced with TTL 0 is kept before its
// removal is surfaced to subscribers (RFC 6762 §10.1).
const goodbyeDelay = time.Second

// Cache is the set of records observed on a single interface and address
// family.
//
// Cache is not safe for concurrent use; like the rest of the core, it is
// meant to be driven from the single event-loop goroutine that also owns its
// Queue.
type Cache struct {
	Queue  *timeevent.Queue
	Clock  timeevent.Clock
	Logger logging.Logger

	// Refresh is called when a cached record has reached one of the TTL
	// maintenance fractions, so that the query accumulator can ask peers to
	// refresh it before it expires. It may be nil.
	Refresh func(record.Key)

	entries     map[record.Key]map[string]*entry
	subscribers []*subscription
}

type entry struct {
	rec          *record.Record
	source       string
	expiry       *timeevent.Handle
	maintenance  []*timeevent.Handle
	pendingFlush *timeevent.Handle
}

// New returns an empty Cache driven by q and clk.
func New(q *timeevent.Queue, clk timeevent.Clock) *Cache {
	return &Cache{
		Queue:   q,
		Clock:   clk,
		entries: map[record.Key]map[string]*entry{},
	}
}

// Put processes the arrival of record r from address src at time now,
// implementing the algorithm of spec §4.3.
func (c *Cache) Put(src net.Addr, r *record.Record, now time.Time) {
	key := r.Key()
	bucket := c.entries[key]
	if bucket == nil {
		bucket = map[string]*entry{}
		c.entries[key] = bucket
	}

	fp := r.Fingerprint()
	srcAddr := addrString(src)

	if r.Unique {
		c.scheduleFlush(key, bucket, srcAddr, fp, now)
	}

	if r.IsGoodbye() {
		c.handleGoodbye(key, bucket, fp, now)
		return
	}

	if e, ok := bucket[fp]; ok {
		e.rec = r.WithExpiry(now.Add(r.TTL()))
		if e.pendingFlush != nil {
			c.Queue.Cancel(e.pendingFlush)
			e.pendingFlush = nil
		}
		c.rescheduleExpiry(key, fp, e, now)
		return
	}

	e := &entry{rec: r.WithExpiry(now.Add(r.TTL())), source: srcAddr}
	bucket[fp] = e
	c.rescheduleExpiry(key, fp, e, now)
	c.notify(key, Event{Kind: EventNew, Record: e.rec})
}

// scheduleFlush marks every other record sharing key and originating from
// srcAddr for removal in flushDelay, unless re-asserted before then.
func (c *Cache) scheduleFlush(key record.Key, bucket map[string]*entry, srcAddr, fp string, now time.Time) {
	for otherFP, e := range bucket {
		if otherFP == fp || e.source != srcAddr || e.pendingFlush != nil {
			continue
		}

		capturedFP := otherFP
		e.pendingFlush = c.Queue.Schedule(now.Add(flushDelay), func(t time.Time) {
			c.flushIfStillPending(key, capturedFP, t)
		})
	}
}

func (c *Cache) flushIfStillPending(key record.Key, fp string, now time.Time) {
	bucket, ok := c.entries[key]
	if !ok {
		return
	}

	e, ok := bucket[fp]
	if !ok || e.pendingFlush == nil {
		return
	}

	c.remove(key, fp, now)
}

func (c *Cache) handleGoodbye(key record.Key, bucket map[string]*entry, fp string, now time.Time) {
	e, ok := bucket[fp]
	if !ok {
		// Nothing cached under this key/payload; a goodbye for a record we
		// never observed has nothing to withdraw.
		return
	}

	c.cancelTimers(e)
	e.expiry = c.Queue.Schedule(now.Add(goodbyeDelay), func(t time.Time) {
		c.remove(key, fp, t)
	})
}

func (c *Cache) rescheduleExpiry(key record.Key, fp string, e *entry, now time.Time) {
	c.cancelTimers(e)

	ttl := e.rec.TTL()
	for _, frac := range maintenanceFractions {
		at := now.Add(time.Duration(float64(ttl) * frac))
		at = at.Add(timeevent.RandBetween(-2*time.Second, 2*time.Second))

		h := c.Queue.Schedule(at, func(time.Time) {
			if c.Refresh != nil {
				c.Refresh(key)
			}
		})
		e.maintenance = append(e.maintenance, h)
	}

	e.expiry = c.Queue.Schedule(e.rec.Expires, func(t time.Time) {
		c.remove(key, fp, t)
	})
}

func (c *Cache) cancelTimers(e *entry) {
	if e.expiry != nil {
		c.Queue.Cancel(e.expiry)
		e.expiry = nil
	}

	for _, h := range e.maintenance {
		c.Queue.Cancel(h)
	}
	e.maintenance = nil

	if e.pendingFlush != nil {
		c.Queue.Cancel(e.pendingFlush)
		e.pendingFlush = nil
	}
}

func (c *Cache) remove(key record.Key, fp string, now time.Time) {
	bucket, ok := c.entries[key]
	if !ok {
		return
	}

	e, ok := bucket[fp]
	if !ok {
		return
	}

	c.cancelTimers(e)
	delete(bucket, fp)
	if len(bucket) == 0 {
		delete(c.entries, key)
	}

	c.notify(key, Event{Kind: EventRemove, Record: e.rec})
}

// Lookup returns every live record matching the key pattern.
func (c *Cache) Lookup(pattern record.Key) []*record.Record {
	var out []*record.Record

	now := c.Clock.Now()
	for key, bucket := range c.entries {
		if !pattern.Matches(key) {
			continue
		}

		for _, e := range bucket {
			if e.rec.Expires.IsZero() || e.rec.Expires.After(now) {
				out = append(out, e.rec)
			}
		}
	}

	return out
}

// Subscribe registers fn to be called with every NEW/REMOVE event for
// records matching pattern, and returns a cancellation function.
func (c *Cache) Subscribe(pattern record.Key, fn Listener) (cancel func()) {
	sub := &subscription{pattern, fn}
	c.subscribers = append(c.subscribers, sub)

	return func() {
		for i, s := range c.subscribers {
			if s == sub {
				c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (c *Cache) notify(key record.Key, ev Event) {
	// Snapshot before dispatch: a subscriber callback may free the browser
	// that registered it, which would otherwise mutate c.subscribers while
	// we are iterating it (spec §5).
	subs := make([]*subscription, len(c.subscribers))
	copy(subs, c.subscribers)

	for _, s := range subs {
		if s.pattern.Matches(key) {
			s.fn(ev)
		}
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
