// Package browse implements the record browser: the component that turns a
// cache subscription plus active querying into the the NEW / REMOVE /
// ALL_FOR_NOW / CACHE_EXHAUSTED event stream consumed by the higher-level
// DNS-SD browsers and resolvers (spec §4.7).
package browse

import (
	"time"

	"github.com/avahi-go/mdnscore/cache"
	"github.com/avahi-go/mdnscore/query"
	"github.com/avahi-go/mdnscore/record"
	"github.com/avahi-go/mdnscore/timeevent"
)

// allForNowDelay is how long a browser waits after starting before it
// assumes it has seen everything that is currently on the link.
const allForNowDelay = time.Second

// EventKind identifies the kind of event a browser listener receives.
type EventKind int

// The kinds of browse event.
const (
	// EventNew indicates a record newly matching the browser's pattern was
	// observed, either seeded from the cache at Start or freshly cached.
	EventNew EventKind = iota

	// EventRemove indicates a previously-surfaced record is no longer live.
	EventRemove

	// EventAllForNow indicates the browser believes it has now seen
	// everything the link currently has to offer; it does not preclude
	// records arriving later.
	EventAllForNow

	// EventCacheExhausted indicates the last record matching the browser's
	// pattern was just removed, leaving the cache empty for it.
	EventCacheExhausted
)

// String returns a human-readable name for k.
func (k EventKind) String() string {
	switch k {
	case EventNew:
		return "NEW"
	case EventRemove:
		return "REMOVE"
	case EventAllForNow:
		return "ALL_FOR_NOW"
	case EventCacheExhausted:
		return "CACHE_EXHAUSTED"
	default:
		return "UNKNOWN"
	}
}

// Event is a single browser notification. Record is nil for EventAllForNow
// and EventCacheExhausted.
type Event struct {
	Kind   EventKind
	Record *record.Record
}

// Listener receives browse events.
type Listener func(Event)

// Browser surfaces every cached (and subsequently observed) record matching
// a pattern, driving the query accumulator to keep the cache populated.
//
// Browser is not safe for concurrent use; it is driven from the single
// per-interface event-loop goroutine.
type Browser struct {
	Queue       *timeevent.Queue
	Clock       timeevent.Clock
	Cache       *cache.Cache
	Accumulator *query.Accumulator
	Pattern     record.Key
	Listener    Listener

	// Unicast requests unicast-response queries from the accumulator,
	// appropriate for a browser with exactly one interested consumer.
	Unicast bool

	unsubCache func()
	unsubQuery func()
	allForNow  *timeevent.Handle
	running    bool
}

// New returns a Browser for pattern, driven by q/clk, reading/populating c,
// and requesting active queries via acc (which may be nil for a
// cache-only/passive browser).
func New(q *timeevent.Queue, clk timeevent.Clock, c *cache.Cache, acc *query.Accumulator, pattern record.Key) *Browser {
	return &Browser{
		Queue:       q,
		Clock:       clk,
		Cache:       c,
		Accumulator: acc,
		Pattern:     pattern,
	}
}

// Start seeds the listener with every record currently cached under the
// browser's pattern, subscribes to future cache changes, registers with the
// query accumulator, and arranges for an ALL_FOR_NOW event after
// allForNowDelay.
func (b *Browser) Start() {
	if b.running {
		return
	}
	b.running = true

	b.seedAndSubscribeCache()

	if b.Accumulator != nil {
		b.unsubQuery = b.Accumulator.Register(b.Pattern, b.Unicast)
	}

	b.armAllForNow()
}

func (b *Browser) seedAndSubscribeCache() {
	for _, r := range b.Cache.Lookup(b.Pattern) {
		b.emit(Event{Kind: EventNew, Record: r})
	}

	b.unsubCache = b.Cache.Subscribe(b.Pattern, func(ev cache.Event) {
		switch ev.Kind {
		case cache.EventNew:
			b.emit(Event{Kind: EventNew, Record: ev.Record})
		case cache.EventRemove:
			b.emit(Event{Kind: EventRemove, Record: ev.Record})
			if len(b.Cache.Lookup(b.Pattern)) == 0 {
				b.emit(Event{Kind: EventCacheExhausted})
			}
		}
	})
}

func (b *Browser) armAllForNow() {
	b.allForNow = b.Queue.Schedule(b.Clock.Now().Add(allForNowDelay), func(time.Time) {
		b.emit(Event{Kind: EventAllForNow})
	})
}

// Stop unsubscribes the browser from the cache and the query accumulator and
// cancels its pending ALL_FOR_NOW timer. It does not emit REMOVE events for
// records the browser had surfaced; callers that need to clear downstream
// state should do so themselves before calling Stop.
func (b *Browser) Stop() {
	if !b.running {
		return
	}
	b.running = false

	if b.unsubCache != nil {
		b.unsubCache()
		b.unsubCache = nil
	}
	if b.unsubQuery != nil {
		b.unsubQuery()
		b.unsubQuery = nil
	}
	if b.allForNow != nil {
		b.Queue.Cancel(b.allForNow)
		b.allForNow = nil
	}
}

// Restart re-seeds the listener with the cache's current contents and
// re-arms the ALL_FOR_NOW timer, without reopening the query: the
// accumulator registration (and its back-off state) from the original Start
// is left untouched. If the browser isn't running, Restart just starts it.
func (b *Browser) Restart() {
	if !b.running {
		b.Start()
		return
	}

	if b.unsubCache != nil {
		b.unsubCache()
		b.unsubCache = nil
	}
	if b.allForNow != nil {
		b.Queue.Cancel(b.allForNow)
		b.allForNow = nil
	}

	b.seedAndSubscribeCache()
	b.armAllForNow()
}

func (b *Browser) emit(ev Event) {
	if b.Listener != nil {
		b.Listener(ev)
	}
}
