// Package respond implements the response scheduler: the component that
// turns the set of records an incoming question matched into outgoing
// packets, applying known-answer suppression, the RFC 6762 §6 response
// delay, packing one question's answers into MTU-budgeted packets, per-record
// multicast rate limiting, and the legacy-unicast reply path (spec §4.5).
package respond

import (
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/miekg/dns"

	"github.com/avahi-go/mdnscore/internal/transport"
	"github.com/avahi-go/mdnscore/record"
	"github.com/avahi-go/mdnscore/timeevent"
)

// sharedDelayMin and sharedDelayMax bound the random defer applied to a
// multicast answer that may also be given by other responders on the link
// (a non-unique, i.e. shared, record), per RFC 6762 §6.
const (
	sharedDelayMin = 20 * time.Millisecond
	sharedDelayMax = 120 * time.Millisecond
)

// uniqueDelayMin and uniqueDelayMax bound the smaller jitter applied to a
// multicast answer that only this responder can give (a record asserted
// with the cache-flush bit), to avoid synchronized bursts without the full
// shared-record contention window.
const (
	uniqueDelayMin = 0 * time.Millisecond
	uniqueDelayMax = 20 * time.Millisecond
)

// legacyTTL is the TTL ceiling applied to answers sent to a legacy unicast
// querier, per RFC 6762 §6.7.
const legacyTTL = 10 * time.Second

// multicastRateLimit is the minimum spacing enforced between two multicast
// assertions of the same record, per RFC 6762 §6.
const multicastRateLimit = time.Second

// packetBudget bounds the size of a single coalesced response packet; answers
// that do not fit are sent in a follow-up packet instead of being dropped.
const packetBudget = 1232

// Scheduler batches and transmits the records that answer one or more
// incoming questions.
//
// Like the rest of the core, Scheduler is not safe for concurrent use; it is
// driven from the single per-interface event-loop goroutine.
type Scheduler struct {
	Queue  *timeevent.Queue
	Clock  timeevent.Clock
	Logger logging.Logger

	lastMulticast map[record.Key]time.Time
}

// New returns a Scheduler driven by q/clk.
func New(q *timeevent.Queue, clk timeevent.Clock) *Scheduler {
	return &Scheduler{
		Queue:         q,
		Clock:         clk,
		lastMulticast: map[record.Key]time.Time{},
	}
}

// Answer schedules responses to the question q found in the inbound packet
// in, from candidates: the locally owned records that match q. Each call
// sends its own packet(s); answers to separate calls are not coalesced.
//
// now is the current time; known is the set of records the querier already
// claims to hold (the query's Answer section), used for known-answer
// suppression: a candidate is omitted if an entry in known carries the same
// payload and a remaining TTL of at least half the candidate's full TTL.
func (s *Scheduler) Answer(in *transport.InboundPacket, q dns.Question, candidates []*record.Record, known []dns.RR, now time.Time) {
	if in.Source.IsLegacy() {
		s.answerLegacy(in, q, candidates, now)
		return
	}

	unicast, _ := record.WantsUnicastResponse(q)

	var toSend []*record.Record
	sharedDelay := false

	for _, cand := range candidates {
		if suppressedByKnownAnswer(cand, known) {
			continue
		}

		if !unicast {
			if last, ok := s.lastMulticast[cand.Key()]; ok && now.Sub(last) < multicastRateLimit {
				continue
			}
		}

		toSend = append(toSend, cand)
		if !cand.Unique {
			sharedDelay = true
		}
	}

	if len(toSend) == 0 {
		return
	}

	if unicast {
		s.send(in, toSend, false)
		return
	}

	delay := timeevent.RandBetween(uniqueDelayMin, uniqueDelayMax)
	if sharedDelay {
		delay = timeevent.RandBetween(sharedDelayMin, sharedDelayMax)
	}

	s.Queue.Schedule(now.Add(delay), func(time.Time) {
		s.send(in, toSend, true)
	})
}

func (s *Scheduler) answerLegacy(in *transport.InboundPacket, q dns.Question, candidates []*record.Record, now time.Time) {
	if len(candidates) == 0 {
		return
	}

	m := &dns.Msg{}
	m.Compress = true
	m.Question = []dns.Question{q}
	m.Response = true
	m.Authoritative = true

	for _, cand := range candidates {
		rr := dns.Copy(cand.RR)
		h := rr.Header()
		if h.Ttl > uint32(legacyTTL/time.Second) {
			h.Ttl = uint32(legacyTTL / time.Second)
		}
		record.SetCacheFlush(rr, false)
		m.Answer = append(m.Answer, rr)
	}

	ok, err := transport.SendUnicastResponse(in, m)
	if err != nil && s.Logger != nil {
		logging.Log(s.Logger, "unable to send legacy unicast response: %s", err)
	}
	_ = ok
}

// send transmits toSend either as a single multicast packet, splitting into
// MTU-budgeted follow-ups as needed, or as a unicast reply to in's source.
func (s *Scheduler) send(in *transport.InboundPacket, toSend []*record.Record, multicast bool) {
	now := s.Clock.Now()

	m := &dns.Msg{}
	m.Compress = true
	m.Response = true
	m.Authoritative = true

	var overflow []*record.Record
	for _, cand := range toSend {
		m.Answer = append(m.Answer, cand.RR)
		if fits(m) {
			continue
		}
		m.Answer = m.Answer[:len(m.Answer)-1]
		overflow = append(overflow, cand)
	}

	var (
		ok  bool
		err error
	)
	if multicast {
		ok, err = transport.SendMulticastResponse(in, m)
	} else {
		ok, err = transport.SendUnicastResponse(in, m)
	}
	if err != nil && s.Logger != nil {
		logging.Log(s.Logger, "unable to send mDNS response: %s", err)
	}
	if ok && multicast {
		for _, cand := range toSend {
			if len(overflow) == 0 || !contains(overflow, cand) {
				s.lastMulticast[cand.Key()] = now
			}
		}
	}

	if len(overflow) > 0 {
		s.send(in, overflow, multicast)
	}
}

func contains(rs []*record.Record, r *record.Record) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

func fits(m *dns.Msg) bool {
	buf, err := m.Pack()
	return err == nil && len(buf) <= packetBudget
}

// suppressedByKnownAnswer returns true if known already contains cand's
// payload with a remaining TTL of at least half cand's full TTL, per the
// known-answer suppression rule of RFC 6762 §7.1.
func suppressedByKnownAnswer(cand *record.Record, known []dns.RR) bool {
	for _, rr := range known {
		if record.KeyOf(rr) != cand.Key() {
			continue
		}

		kr := record.New(rr)
		if kr.Fingerprint() != cand.Fingerprint() {
			continue
		}

		if time.Duration(rr.Header().Ttl)*time.Second >= cand.TTL()/2 {
			return true
		}
	}
	return false
}
