// Package record implements the mDNS / DNS-SD resource-record data model: the
// (name, class, type) key, the immutable-once-published record value, the
// RFC 6762 cache-flush and unicast-response bits, and the lexicographic
// tie-break used for probe collision detection.
package record

import (
	"hash/fnv"
	"strings"

	"github.com/miekg/dns"
)

// cacheFlushBit is the high bit of the RR class in a response, asserting
// unique ownership of the name (RFC 6762 §10.2).
const cacheFlushBit = 1 << 15

// unicastRequestBit is the high bit of the QCLASS in a question, requesting
// a unicast reply (RFC 6762 §18.12).
const unicastRequestBit = 1 << 15

// Key identifies a resource record by name, class, and type.
//
// Name comparisons are case-insensitive; class and type are compared for
// exact equality. A Key whose Type is dns.TypeANY is a pattern that matches
// any type under Name.
type Key struct {
	Name  string
	Class uint16
	Type  uint16
}

// NewKey returns the key for the fully-qualified name n, class IN, and the
// given RR type.
func NewKey(n string, t uint16) Key {
	return Key{Name: n, Class: dns.ClassINET, Type: t}
}

// IsPattern returns true if k matches any RR type under its name.
func (k Key) IsPattern() bool {
	return k.Type == dns.TypeANY
}

// Matches returns true if the concrete key c is matched by the pattern (or
// concrete key) k.
func (k Key) Matches(c Key) bool {
	if !strings.EqualFold(k.Name, c.Name) {
		return false
	}

	if k.Class != c.Class {
		return false
	}

	return k.IsPattern() || k.Type == c.Type
}

// Hash returns a hash of k, derived from the lower-cased name plus class and
// type, stable across equal (case-insensitively) keys.
func (k Key) Hash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToLower(k.Name)))
	_, _ = h.Write([]byte{
		byte(k.Class >> 8), byte(k.Class),
		byte(k.Type >> 8), byte(k.Type),
	})
	return h.Sum64()
}

// String returns a human-readable representation of k.
func (k Key) String() string {
	return dns.Fqdn(k.Name) + " " + dns.ClassToString[k.Class&^cacheFlushBit] + " " + dns.TypeToString[k.Type]
}

// KeyOf returns the key of the resource record rr.
func KeyOf(rr dns.RR) Key {
	h := rr.Header()
	return Key{
		Name:  h.Name,
		Class: h.Class &^ cacheFlushBit,
		Type:  h.Rrtype,
	}
}

// CacheFlush returns true if the class field of rr has the cache-flush bit
// set, per RFC 6762 §10.2.
func CacheFlush(rr dns.RR) bool {
	return rr.Header().Class&cacheFlushBit != 0
}

// SetCacheFlush sets or clears the cache-flush bit on rr's class field.
func SetCacheFlush(rr dns.RR, unique bool) {
	h := rr.Header()
	if unique {
		h.Class |= cacheFlushBit
	} else {
		h.Class &^= cacheFlushBit
	}
}

// WantsUnicastResponse returns true if q requested a unicast response, along
// with a copy of q with the "unicast response" bit cleared so that Qclass
// reflects the actual question class.
//
// See https://tools.ietf.org/html/rfc6762#section-18.12.
func WantsUnicastResponse(q dns.Question) (bool, dns.Question) {
	u := q.Qclass&unicastRequestBit != 0
	q.Qclass &^= unicastRequestBit
	return u, q
}

// SetUnicastRequest sets the "unicast response" bit on q.
func SetUnicastRequest(q dns.Question) dns.Question {
	q.Qclass |= unicastRequestBit
	return q
}
