package cache

import "github.com/avahi-go/mdnscore/record"

// EventKind identifies the kind of change a cache subscriber is notified of.
type EventKind int

// The kinds of cache event.
const (
	// EventNew indicates a record was observed for the first time.
	EventNew EventKind = iota

	// EventRemove indicates a previously-observed record is no longer live,
	// either because its TTL expired or because it was withdrawn via a
	// goodbye packet.
	EventRemove
)

// String returns a human-readable name for k.
func (k EventKind) String() string {
	switch k {
	case EventNew:
		return "NEW"
	case EventRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// Event describes a single change to the cache's contents.
type Event struct {
	Kind   EventKind
	Record *record.Record
}

// Listener receives cache events for records matching the key pattern it
// was registered with.
type Listener func(Event)

type subscription struct {
	pattern record.Key
	fn      Listener
}
