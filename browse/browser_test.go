package browse

import (
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/avahi-go/mdnscore/cache"
	"github.com/avahi-go/mdnscore/query"
	"github.com/avahi-go/mdnscore/record"
	"github.com/avahi-go/mdnscore/timeevent"
)

func ptrRecord(instance string) *record.Record {
	rr := &dns.PTR{
		Hdr: dns.RR_Header{Name: "_http._tcp.local.", Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 120},
		Ptr: instance,
	}
	return record.New(rr)
}

func newTestBrowser(seed ...*record.Record) (*Browser, *cache.Cache, *timeevent.VirtualClock, *[]Event) {
	clk := timeevent.NewVirtualClock(time.Unix(0, 0))
	q := timeevent.New(clk)
	c := cache.New(q, clk)

	src := &net.UDPAddr{IP: net.ParseIP("192.0.2.1")}
	for _, r := range seed {
		c.Put(src, r, clk.Now())
	}

	var sent []*dns.Msg
	acc := query.New(q, clk, c, func(m *dns.Msg) error {
		sent = append(sent, m)
		return nil
	})

	var events []Event
	b := New(q, clk, c, acc, record.NewKey("_http._tcp.local.", dns.TypePTR))
	b.Listener = func(e Event) { events = append(events, e) }

	return b, c, clk, &events
}

func TestStartSeedsFromCache(t *testing.T) {
	b, _, _, events := newTestBrowser(ptrRecord("one._http._tcp.local."))
	b.Start()

	news := 0
	for _, e := range *events {
		if e.Kind == EventNew {
			news++
		}
	}
	if news != 1 {
		t.Fatalf("expected 1 seeded NEW event, got %d", news)
	}
}

func TestAllForNowFiresAfterOneSecond(t *testing.T) {
	b, _, clk, events := newTestBrowser()
	b.Start()

	clk.Advance(900 * time.Millisecond)
	b.Queue.Fire(clk.Now())
	for _, e := range *events {
		if e.Kind == EventAllForNow {
			t.Fatal("ALL_FOR_NOW fired too early")
		}
	}

	clk.Advance(200 * time.Millisecond)
	b.Queue.Fire(clk.Now())

	found := false
	for _, e := range *events {
		if e.Kind == EventAllForNow {
			found = true
		}
	}
	if !found {
		t.Fatal("expected ALL_FOR_NOW to fire after 1s")
	}
}

func TestCacheExhaustedFiresOnLastRemoval(t *testing.T) {
	b, c, clk, events := newTestBrowser(ptrRecord("one._http._tcp.local."))
	b.Start()

	src := &net.UDPAddr{IP: net.ParseIP("192.0.2.1")}
	goodbye := &dns.PTR{
		Hdr: dns.RR_Header{Name: "_http._tcp.local.", Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 0},
		Ptr: "one._http._tcp.local.",
	}
	c.Put(src, record.New(goodbye), clk.Now())

	clk.Advance(1100 * time.Millisecond)
	c.Queue.Fire(clk.Now())

	exhausted := false
	for _, e := range *events {
		if e.Kind == EventCacheExhausted {
			exhausted = true
		}
	}
	if !exhausted {
		t.Fatal("expected CACHE_EXHAUSTED once the last record was removed")
	}
}

func TestRestartDoesNotReopenTheQuery(t *testing.T) {
	clk := timeevent.NewVirtualClock(time.Unix(0, 0))
	q := timeevent.New(clk)
	c := cache.New(q, clk)

	var queriesSent int
	acc := query.New(q, clk, c, func(m *dns.Msg) error {
		queriesSent++
		return nil
	})

	var events []Event
	b := New(q, clk, c, acc, record.NewKey("_http._tcp.local.", dns.TypePTR))
	b.Listener = func(e Event) { events = append(events, e) }

	b.Start()
	if queriesSent != 1 {
		t.Fatalf("expected 1 query sent by Start, got %d", queriesSent)
	}

	clk.Advance(500 * time.Millisecond)
	b.Restart()

	if queriesSent != 1 {
		t.Fatalf("expected Restart to leave the existing query registration alone, got %d queries sent", queriesSent)
	}

	for _, e := range events {
		if e.Kind == EventAllForNow {
			t.Fatal("ALL_FOR_NOW should not have fired yet")
		}
	}

	// The accumulator's own backoff timer (scheduled by the original
	// Register call) still fires on schedule, independent of Restart.
	clk.Advance(700 * time.Millisecond)
	q.Fire(clk.Now())
	if queriesSent != 2 {
		t.Fatalf("expected the original backoff timer to still fire once, got %d queries sent", queriesSent)
	}
}

func TestStopCancelsQueryingAndTimer(t *testing.T) {
	b, _, clk, events := newTestBrowser()
	b.Start()
	b.Stop()

	before := len(*events)
	clk.Advance(2 * time.Second)
	b.Queue.Fire(clk.Now())

	if len(*events) != before {
		t.Fatalf("expected no further events after Stop, got %d new events", len(*events)-before)
	}
}
