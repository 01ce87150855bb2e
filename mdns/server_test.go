package mdns

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/avahi-go/mdnscore/internal/transport"
)

func TestOptionsConfigureServer(t *testing.T) {
	iface := net.Interface{Name: "lo0"}

	s, err := New(UseInterface(iface), DisableIPv6)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if s.iface.Name != "lo0" {
		t.Fatalf("expected the configured interface to be used, got %q", s.iface.Name)
	}
	if !s.disableIPv6 {
		t.Fatal("expected IPv6 to be disabled")
	}
	if s.disableIPv4 {
		t.Fatal("did not expect IPv4 to be disabled")
	}
}

func TestBothFamiliesDisabledIsAnError(t *testing.T) {
	s, err := New(UseInterface(net.Interface{Name: "lo0"}), DisableIPv4, DisableIPv6)
	if err != nil {
		t.Fatalf("unexpected error constructing server: %s", err)
	}

	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected an error when both address families are disabled")
	}
}

type fakeTransport struct {
	group *net.UDPAddr
	sent  []*transport.OutboundPacket
}

func (f *fakeTransport) Listen(*net.Interface) error                { return nil }
func (f *fakeTransport) Read() (*transport.InboundPacket, error)    { return nil, nil }
func (f *fakeTransport) Group() *net.UDPAddr                        { return f.group }
func (f *fakeTransport) Close() error                                { return nil }
func (f *fakeTransport) Write(p *transport.OutboundPacket) error {
	f.sent = append(f.sent, p)
	return nil
}

func TestHandleQueryAnswersOwnedRecord(t *testing.T) {
	s, err := New(UseInterface(net.Interface{Name: "lo0"}), DisableIPv6)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	tr := &fakeTransport{group: &net.UDPAddr{IP: net.ParseIP("224.0.0.251"), Port: transport.Port}}
	s.transports = []transport.Transport{tr}

	g := s.NewHostGroup(&dns.A{
		Hdr: dns.RR_Header{Name: "myhost.local.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 120},
		A:   net.ParseIP("10.0.0.9"),
	})
	g.Commit()

	// Drive probing+announcing to completion so the group is Established.
	now := s.Clock.Now()
	for i := 0; i < 10; i++ {
		now = now.Add(2 * time.Second)
		s.Queue.Fire(now)
	}

	in := &transport.InboundPacket{
		Transport: tr,
		Source: transport.Endpoint{
			Address: &net.UDPAddr{IP: net.ParseIP("192.0.2.50"), Port: transport.Port},
		},
	}

	m := &dns.Msg{
		Question: []dns.Question{
			{Name: "myhost.local.", Qtype: dns.TypeA, Qclass: dns.ClassINET},
		},
	}

	before := len(tr.sent)
	s.handleQuery(in, m, now)
	now = now.Add(200 * time.Millisecond)
	s.Queue.Fire(now)

	if len(tr.sent) <= before {
		t.Fatal("expected the owned A record to be answered")
	}
}
