package record

import (
	"bytes"
	"time"

	"github.com/miekg/dns"
)

// Record is a resource record observed on the link or held locally, together
// with the bookkeeping the cache and entry-group state machine need.
//
// A Record is logically immutable once published; replacing its value (a
// refreshed TTL, a renamed target, ...) always produces a new *Record rather
// than mutating the one in place, so that concurrent readers (such as a
// browser mid-callback) never observe a half-updated record.
type Record struct {
	// RR is the underlying, wire-ready resource record. Its Hdr.Ttl is the
	// record's *original* TTL in seconds; Expires (below) carries the
	// absolute expiry derived from arrival time, per the cache's TTL model.
	RR dns.RR

	// Unique indicates this record is asserted with the cache-flush bit,
	// i.e. the owner claims sole authority over the name.
	Unique bool

	// Expires is the absolute time at which this record should be evicted
	// from the cache. It is the zero Time for locally-owned records that are
	// not subject to cache expiry.
	Expires time.Time
}

// New returns a Record wrapping rr, using rr's class-field cache-flush bit to
// set Unique and the current cache-flush convention.
func New(rr dns.RR) *Record {
	return &Record{
		RR:     rr,
		Unique: CacheFlush(rr),
	}
}

// Key returns the record's key.
func (r *Record) Key() Key {
	return KeyOf(r.RR)
}

// TTL returns the record's original TTL.
func (r *Record) TTL() time.Duration {
	return time.Duration(r.RR.Header().Ttl) * time.Second
}

// IsGoodbye returns true if the record announces a TTL of zero, withdrawing
// a previously-asserted record (RFC 6762 §10.1).
func (r *Record) IsGoodbye() bool {
	return r.RR.Header().Ttl == 0
}

// WithExpiry returns a copy of r with Expires set to at.
func (r *Record) WithExpiry(at time.Time) *Record {
	c := *r
	c.Expires = at
	return &c
}

// Goodbye returns a copy of r with its TTL set to zero, suitable for
// announcing the record's withdrawal.
func (r *Record) Goodbye() *Record {
	rr := dns.Copy(r.RR)
	rr.Header().Ttl = 0
	return &Record{RR: rr, Unique: r.Unique}
}

// rdata returns the wire-encoded rdata of rr, used for payload equality and
// the lexicographic tie-break. The name, class, and TTL are normalized away
// first (by packing a copy with a root name, class IN, and TTL 0) so that
// only the type-specific data remains: a fixed 11-byte prefix (1-byte root
// name + 2-byte type + 2-byte class + 4-byte TTL + 2-byte RDLENGTH) precedes
// the RDATA in every such encoding.
func rdata(rr dns.RR) []byte {
	c := dns.Copy(rr)
	h := c.Header()
	h.Name = "."
	h.Class = dns.ClassINET
	h.Ttl = 0

	buf := make([]byte, dns.Len(c)+64)
	n, err := dns.PackRR(c, buf, 0, nil, false)
	if err != nil || n < 11 {
		return nil
	}

	return buf[11:n]
}

// Equal returns true if r and other have the same key and the same payload
// (rdata bytes), per the cache's (key, payload-fingerprint) identity.
func (r *Record) Equal(other *Record) bool {
	if other == nil {
		return false
	}

	if r.Key() != other.Key() {
		return false
	}

	return bytes.Equal(rdata(r.RR), rdata(other.RR))
}

// Outranks implements the RFC 6762 §8.2.1 lexicographic tie-break used to
// resolve probe collisions: compare class (ignoring the cache-flush bit),
// then type, then rdata bytewise; the larger value wins. Outranks is total
// and antisymmetric over distinct payloads.
func (r *Record) Outranks(other *Record) bool {
	rh, oh := r.RR.Header(), other.RR.Header()

	if rc, oc := rh.Class&^cacheFlushBit, oh.Class&^cacheFlushBit; rc != oc {
		return rc > oc
	}

	if rh.Rrtype != oh.Rrtype {
		return rh.Rrtype > oh.Rrtype
	}

	return bytes.Compare(rdata(r.RR), rdata(other.RR)) > 0
}

// Fingerprint returns an opaque identifier for r's payload (its rdata),
// distinguishing multiple records sharing a Key, per the cache's
// (key, payload-fingerprint) identity.
func (r *Record) Fingerprint() string {
	return string(rdata(r.RR))
}

// RemainingTTL returns the time remaining until r expires, measured from now.
// It is always the record's full TTL for locally-owned records (Expires is
// zero).
func (r *Record) RemainingTTL(now time.Time) time.Duration {
	if r.Expires.IsZero() {
		return r.TTL()
	}

	if now.After(r.Expires) {
		return 0
	}

	return r.Expires.Sub(now)
}
