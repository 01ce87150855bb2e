// Package query implements the outgoing query accumulator: the component
// that issues and re-issues mDNS questions on behalf of browsers and cache
// refreshes, applying known-answer suppression, duplicate-question
// suppression, and the exponential back-off schedule of RFC 6762 §5.2.
package query

import (
	"fmt"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/miekg/dns"

	"github.com/avahi-go/mdnscore/cache"
	"github.com/avahi-go/mdnscore/record"
	"github.com/avahi-go/mdnscore/timeevent"
)

// maxBackoff is the ceiling on the exponential re-query interval.
const maxBackoff = 3600 * time.Second

// packetBudget is the maximum size, in bytes, of a single outgoing query
// packet before known-answer records overflow into a TC-marked follow-up.
const packetBudget = 1232 // conservative link MTU minus IP/UDP headers

// Sender transmits an assembled outgoing query message.
type Sender func(m *dns.Msg) error

// Accumulator drives the outbound questions for a single interface.
type Accumulator struct {
	Queue  *timeevent.Queue
	Clock  timeevent.Clock
	Cache  *cache.Cache
	Send   Sender
	Logger logging.Logger

	interests       map[record.Key]*interest
	recentQuestions map[string]time.Time
}

type interest struct {
	pattern  record.Key
	unicast  bool
	backoff  time.Duration
	handle   *timeevent.Handle
}

// New returns an Accumulator driven by q/clk, reading known answers from c
// and sending assembled questions via send.
func New(q *timeevent.Queue, clk timeevent.Clock, c *cache.Cache, send Sender) *Accumulator {
	return &Accumulator{
		Queue:           q,
		Clock:           clk,
		Cache:           c,
		Send:            send,
		interests:       map[record.Key]*interest{},
		recentQuestions: map[string]time.Time{},
	}
}

// Register begins issuing questions for pattern: an immediate query followed
// by exponential back-off (1s, 2s, 4s, ... capped at 1h). If unicast is true,
// every question is marked with the unicast-response bit and is exempt from
// duplicate-question suppression.
//
// The returned cancel function stops further queries for pattern.
func (a *Accumulator) Register(pattern record.Key, unicast bool) (cancel func()) {
	in := &interest{pattern: pattern, unicast: unicast, backoff: time.Second}
	a.interests[pattern] = in

	a.fire(in, a.Clock.Now())

	return func() {
		if in.handle != nil {
			a.Queue.Cancel(in.handle)
		}
		delete(a.interests, pattern)
	}
}

func (a *Accumulator) fire(in *interest, now time.Time) {
	a.send(in, now)

	jitter := timeevent.RandBetween(20*time.Millisecond, 120*time.Millisecond)
	next := in.backoff
	in.backoff *= 2
	if in.backoff > maxBackoff {
		in.backoff = maxBackoff
	}

	in.handle = a.Queue.Schedule(now.Add(next).Add(jitter), func(t time.Time) {
		a.fire(in, t)
	})
}

func (a *Accumulator) send(in *interest, now time.Time) {
	q := dns.Question{Name: dns.Fqdn(in.pattern.Name), Qtype: in.pattern.Type, Qclass: in.pattern.Class}
	if in.unicast {
		q = record.SetUnicastRequest(q)
	}

	if !in.unicast && a.isDuplicate(q, now) {
		return
	}

	m := &dns.Msg{}
	m.Id = 0
	m.Opcode = dns.OpcodeQuery
	m.Compress = true
	m.Question = []dns.Question{q}

	known := a.Cache.Lookup(in.pattern)
	a.appendKnownAnswers(m, known, now)

	a.markSent(q, now)

	if a.Send != nil {
		if err := a.Send(m); err != nil && a.Logger != nil {
			logging.Log(a.Logger, "unable to send mDNS query for '%s': %s", in.pattern, err)
		}
	}
}

// appendKnownAnswers adds every record whose remaining TTL is at least half
// its original TTL to m, splitting into a TC-marked message and a follow-up
// sent ~450ms later if the packet-size budget is exceeded.
func (a *Accumulator) appendKnownAnswers(m *dns.Msg, known []*record.Record, now time.Time) {
	var overflow []*record.Record

	for _, r := range known {
		if r.RemainingTTL(now) < r.TTL()/2 {
			continue
		}

		m.Answer = append(m.Answer, r.RR)
		if fits(m) {
			continue
		}

		m.Answer = m.Answer[:len(m.Answer)-1]
		overflow = append(overflow, r)
	}

	if len(overflow) == 0 {
		return
	}

	m.Truncated = true

	delay := timeevent.RandBetween(400*time.Millisecond, 500*time.Millisecond)
	a.Queue.Schedule(now.Add(delay), func(t time.Time) {
		cont := &dns.Msg{}
		cont.Compress = true
		cont.Question = m.Question
		a.appendKnownAnswers(cont, overflow, t)
		if a.Send != nil {
			_ = a.Send(cont)
		}
	})
}

func fits(m *dns.Msg) bool {
	buf, err := m.Pack()
	return err == nil && len(buf) <= packetBudget
}

// ObserveQuestion notifies the accumulator that a peer broadcast question q
// at time now, enabling duplicate-question suppression for the following
// second.
func (a *Accumulator) ObserveQuestion(q dns.Question, now time.Time) {
	a.markSent(q, now)
}

func (a *Accumulator) isDuplicate(q dns.Question, now time.Time) bool {
	last, ok := a.recentQuestions[questionKey(q)]
	return ok && now.Sub(last) < time.Second
}

func (a *Accumulator) markSent(q dns.Question, now time.Time) {
	a.recentQuestions[questionKey(q)] = now
}

func questionKey(q dns.Question) string {
	_, plain := record.WantsUnicastResponse(q)
	return fmt.Sprintf("%s/%d/%d", dns.Fqdn(plain.Name), plain.Qclass, plain.Qtype)
}
