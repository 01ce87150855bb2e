package query

import (
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/avahi-go/mdnscore/cache"
	"github.com/avahi-go/mdnscore/record"
	"github.com/avahi-go/mdnscore/timeevent"
)

func newTestAccumulator() (*Accumulator, *cache.Cache, *timeevent.VirtualClock, *[]*dns.Msg) {
	clk := timeevent.NewVirtualClock(time.Unix(0, 0))
	q := timeevent.New(clk)
	c := cache.New(q, clk)

	var sent []*dns.Msg
	a := New(q, clk, c, func(m *dns.Msg) error {
		sent = append(sent, m)
		return nil
	})

	return a, c, clk, &sent
}

func TestRegisterSendsImmediateQuery(t *testing.T) {
	a, _, _, sent := newTestAccumulator()

	a.Register(record.NewKey("_http._tcp.local.", dns.TypePTR), false)

	if len(*sent) != 1 {
		t.Fatalf("expected one immediate query, got %d", len(*sent))
	}
	if (*sent)[0].Question[0].Qtype != dns.TypePTR {
		t.Fatalf("wrong question type: %v", (*sent)[0].Question[0])
	}
}

func TestBackoffDoubles(t *testing.T) {
	a, _, clk, sent := newTestAccumulator()

	a.Register(record.NewKey("_http._tcp.local.", dns.TypePTR), false)
	if len(*sent) != 1 {
		t.Fatalf("expected 1 query, got %d", len(*sent))
	}

	// First re-query should land around 1s later.
	clk.Advance(2 * time.Second)
	a.Queue.Fire(clk.Now())
	if len(*sent) != 2 {
		t.Fatalf("expected 2 queries after 2s, got %d", len(*sent))
	}

	// Second re-query should land around 2s after that (backoff doubled).
	clk.Advance(3 * time.Second)
	a.Queue.Fire(clk.Now())
	if len(*sent) != 3 {
		t.Fatalf("expected 3 queries after backoff doubling, got %d", len(*sent))
	}
}

func TestCancelStopsFurtherQueries(t *testing.T) {
	a, _, clk, sent := newTestAccumulator()

	cancel := a.Register(record.NewKey("_http._tcp.local.", dns.TypePTR), false)
	if len(*sent) != 1 {
		t.Fatalf("expected 1 query, got %d", len(*sent))
	}

	cancel()

	clk.Advance(10 * time.Second)
	a.Queue.Fire(clk.Now())

	if len(*sent) != 1 {
		t.Fatalf("expected no further queries after cancel, got %d", len(*sent))
	}
}

func TestDuplicateQuestionSuppressedWithinOneSecond(t *testing.T) {
	a, _, clk, _ := newTestAccumulator()

	q := dns.Question{Name: "foo.local.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	a.ObserveQuestion(q, clk.Now())

	if !a.isDuplicate(q, clk.Now().Add(500*time.Millisecond)) {
		t.Fatal("expected question to be suppressed within the 1s window")
	}

	if a.isDuplicate(q, clk.Now().Add(1500*time.Millisecond)) {
		t.Fatal("expected suppression window to have elapsed")
	}
}

func TestKnownAnswersAreAppended(t *testing.T) {
	a, c, clk, sent := newTestAccumulator()

	rr := &dns.PTR{
		Hdr: dns.RR_Header{Name: "_http._tcp.local.", Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 120},
		Ptr: "instance._http._tcp.local.",
	}
	c.Put(nil, record.New(rr), clk.Now())

	a.Register(record.NewKey("_http._tcp.local.", dns.TypePTR), false)

	if len(*sent) != 1 {
		t.Fatalf("expected 1 query, got %d", len(*sent))
	}
	if len((*sent)[0].Answer) != 1 {
		t.Fatalf("expected the cached PTR to be included as a known answer, got %d", len((*sent)[0].Answer))
	}
}
