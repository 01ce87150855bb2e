package respond

import (
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/avahi-go/mdnscore/internal/transport"
	"github.com/avahi-go/mdnscore/record"
	"github.com/avahi-go/mdnscore/timeevent"
)

type fakeTransport struct {
	group *net.UDPAddr
	sent  []*transport.OutboundPacket
}

func (f *fakeTransport) Listen(*net.Interface) error { return nil }
func (f *fakeTransport) Read() (*transport.InboundPacket, error) { return nil, nil }
func (f *fakeTransport) Write(p *transport.OutboundPacket) error {
	f.sent = append(f.sent, p)
	return nil
}
func (f *fakeTransport) Group() *net.UDPAddr { return f.group }
func (f *fakeTransport) Close() error        { return nil }

func newInbound(tr *fakeTransport, srcPort int) *transport.InboundPacket {
	return &transport.InboundPacket{
		Transport: tr,
		Source: transport.Endpoint{
			InterfaceIndex: 1,
			Address:        &net.UDPAddr{IP: net.ParseIP("192.0.2.50"), Port: srcPort},
		},
	}
}

func aRecord(unique bool) *record.Record {
	rr := &dns.A{
		Hdr: dns.RR_Header{Name: "foo.local.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 120},
		A:   net.ParseIP("10.0.0.5"),
	}
	record.SetCacheFlush(rr, unique)
	return record.New(rr)
}

func newScheduler() (*Scheduler, *timeevent.VirtualClock) {
	clk := timeevent.NewVirtualClock(time.Unix(0, 0))
	q := timeevent.New(clk)
	return New(q, clk), clk
}

func TestUnicastRequestAnsweredImmediately(t *testing.T) {
	s, clk := newScheduler()
	tr := &fakeTransport{group: &net.UDPAddr{IP: net.ParseIP("224.0.0.251"), Port: 5353}}
	in := newInbound(tr, 5353)

	q := record.SetUnicastRequest(dns.Question{Name: "foo.local.", Qtype: dns.TypeA, Qclass: dns.ClassINET})

	s.Answer(in, q, []*record.Record{aRecord(true)}, nil, clk.Now())

	if len(tr.sent) != 1 {
		t.Fatalf("expected an immediate unicast reply, got %d packets", len(tr.sent))
	}
}

func TestMulticastResponseIsDeferred(t *testing.T) {
	s, clk := newScheduler()
	tr := &fakeTransport{group: &net.UDPAddr{IP: net.ParseIP("224.0.0.251"), Port: 5353}}
	in := newInbound(tr, 5353)

	q := dns.Question{Name: "foo.local.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	s.Answer(in, q, []*record.Record{aRecord(false)}, nil, clk.Now())

	if len(tr.sent) != 0 {
		t.Fatal("expected the shared-record response to be deferred, not sent immediately")
	}

	clk.Advance(150 * time.Millisecond)
	s.Queue.Fire(clk.Now())

	if len(tr.sent) != 1 {
		t.Fatalf("expected the deferred response to fire, got %d packets", len(tr.sent))
	}
}

func TestKnownAnswerSuppressesReply(t *testing.T) {
	s, clk := newScheduler()
	tr := &fakeTransport{group: &net.UDPAddr{IP: net.ParseIP("224.0.0.251"), Port: 5353}}
	in := newInbound(tr, 5353)

	q := dns.Question{Name: "foo.local.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	cand := aRecord(true)

	known := &dns.A{
		Hdr: dns.RR_Header{Name: "foo.local.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 100},
		A:   net.ParseIP("10.0.0.5"),
	}

	s.Answer(in, q, []*record.Record{cand}, []dns.RR{known}, clk.Now())

	clk.Advance(150 * time.Millisecond)
	s.Queue.Fire(clk.Now())

	if len(tr.sent) != 0 {
		t.Fatalf("expected known-answer suppression to drop the reply, got %d packets", len(tr.sent))
	}
}

func TestLegacyUnicastCapsTTLAndClearsCacheFlush(t *testing.T) {
	s, clk := newScheduler()
	tr := &fakeTransport{group: &net.UDPAddr{IP: net.ParseIP("224.0.0.251"), Port: 5353}}
	in := newInbound(tr, 12345) // non-5353 source port: legacy querier

	q := dns.Question{Name: "foo.local.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	s.Answer(in, q, []*record.Record{aRecord(true)}, nil, clk.Now())

	if len(tr.sent) != 1 {
		t.Fatalf("expected an immediate legacy unicast reply, got %d", len(tr.sent))
	}

	m := &dns.Msg{}
	if err := m.Unpack(tr.sent[0].Data); err != nil {
		t.Fatalf("failed to unpack sent packet: %s", err)
	}

	if len(m.Answer) != 1 {
		t.Fatalf("expected 1 answer, got %d", len(m.Answer))
	}
	if m.Answer[0].Header().Ttl > 10 {
		t.Fatalf("expected TTL capped at 10s, got %d", m.Answer[0].Header().Ttl)
	}
	if record.CacheFlush(m.Answer[0]) {
		t.Fatal("expected cache-flush bit to be cleared on a legacy reply")
	}
	if len(m.Question) != 1 || m.Question[0].Name != q.Name {
		t.Fatal("expected the question section to be echoed back")
	}
}

func TestMulticastRateLimitSuppressesSecondAssertion(t *testing.T) {
	s, clk := newScheduler()
	tr := &fakeTransport{group: &net.UDPAddr{IP: net.ParseIP("224.0.0.251"), Port: 5353}}
	in := newInbound(tr, 5353)

	q := dns.Question{Name: "foo.local.", Qtype: dns.TypeA, Qclass: dns.ClassINET}

	s.Answer(in, q, []*record.Record{aRecord(true)}, nil, clk.Now())
	clk.Advance(20 * time.Millisecond)
	s.Queue.Fire(clk.Now())
	if len(tr.sent) != 1 {
		t.Fatalf("expected the first assertion to go out, got %d", len(tr.sent))
	}

	s.Answer(in, q, []*record.Record{aRecord(true)}, nil, clk.Now())
	clk.Advance(20 * time.Millisecond)
	s.Queue.Fire(clk.Now())
	if len(tr.sent) != 1 {
		t.Fatalf("expected the second assertion to be rate-limited, got %d packets", len(tr.sent))
	}

	clk.Advance(1100 * time.Millisecond)
	s.Answer(in, q, []*record.Record{aRecord(true)}, nil, clk.Now())
	clk.Advance(20 * time.Millisecond)
	s.Queue.Fire(clk.Now())
	if len(tr.sent) != 2 {
		t.Fatalf("expected the assertion to go out again once the rate limit window passed, got %d", len(tr.sent))
	}
}
