package entrygroup

import (
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/avahi-go/mdnscore/timeevent"
)

func newTestGroup() (*Group, *timeevent.VirtualClock, *[]*dns.Msg) {
	clk := timeevent.NewVirtualClock(time.Unix(0, 0))
	q := timeevent.New(clk)
	g := New(q, clk)

	var sent []*dns.Msg
	g.Send = func(m *dns.Msg) error {
		sent = append(sent, m)
		return nil
	}

	return g, clk, &sent
}

func aHost(name string) dns.RR {
	return &dns.A{
		Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 120},
		A:   net.ParseIP("10.0.0.1"),
	}
}

func fire(g *Group, clk *timeevent.VirtualClock, d time.Duration) {
	clk.Advance(d)
	g.Queue.Fire(clk.Now())
}

func TestProbeAnnounceEstablishSequence(t *testing.T) {
	g, clk, sent := newTestGroup()
	g.Add(aHost("myhost.local."))
	g.Commit()

	if g.State() != Registering {
		t.Fatalf("expected Registering immediately after Commit, got %s", g.State())
	}
	if len(*sent) != 1 {
		t.Fatalf("expected the first probe to be sent immediately, got %d", len(*sent))
	}

	fire(g, clk, 250*time.Millisecond)
	fire(g, clk, 250*time.Millisecond)
	if len(*sent) != 3 {
		t.Fatalf("expected 3 probes sent, got %d", len(*sent))
	}

	// Final response window before the first announcement.
	fire(g, clk, 250*time.Millisecond)
	if len(*sent) != 4 {
		t.Fatalf("expected the first announcement, got %d packets", len(*sent))
	}
	if g.State() != Established {
		t.Fatalf("expected Established alongside the first announcement, got %s", g.State())
	}

	fire(g, clk, time.Second)
	if len(*sent) != 5 {
		t.Fatalf("expected the second announcement, got %d packets", len(*sent))
	}
	if g.State() != Established {
		t.Fatalf("expected Established after both announcements, got %s", g.State())
	}
}

func TestProbeContainsAuthoritySection(t *testing.T) {
	g, _, sent := newTestGroup()
	g.Add(aHost("myhost.local."))
	g.Commit()

	m := (*sent)[0]
	if len(m.Question) != 1 || m.Question[0].Qtype != dns.TypeANY {
		t.Fatalf("expected an ANY question in the probe, got %v", m.Question)
	}
	if len(m.Ns) != 1 {
		t.Fatalf("expected the proposed record in the authority section, got %d", len(m.Ns))
	}
}

func TestLosingCollisionRenamesAndRestartsProbing(t *testing.T) {
	g, clk, sent := newTestGroup()
	g.Add(aHost("myhost.local."))
	g.Rename = func(name string) string { return "myhost-2.local." }
	g.Commit()

	// A peer asserts a record with the same name but a rdata that outranks
	// ours lexicographically (all-0xFF address).
	peer := &dns.A{
		Hdr: dns.RR_Header{Name: "myhost.local.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 120},
		A:   net.ParseIP("255.255.255.255"),
	}

	g.Observe(peer, clk.Now())

	if g.State() != Collision {
		t.Fatalf("expected Collision state, got %s", g.State())
	}

	recs := g.Records()
	if len(recs) != 1 || recs[0].RR.Header().Name != "myhost-2.local." {
		t.Fatalf("expected the record to be renamed, got %v", recs)
	}

	fire(g, clk, time.Second)
	if g.State() != Registering {
		t.Fatalf("expected probing to restart after the collision pause, got %s", g.State())
	}

	last := (*sent)[len(*sent)-1]
	if last.Ns[0].Header().Name != "myhost-2.local." {
		t.Fatalf("expected the restarted probe to use the renamed name, got %v", last.Ns)
	}
}

func TestWinningCollisionDoesNotRename(t *testing.T) {
	g, clk, _ := newTestGroup()
	g.Add(aHost("myhost.local."))
	renamed := false
	g.Rename = func(name string) string {
		renamed = true
		return "myhost-2.local."
	}
	g.Commit()

	// A peer asserts a record that our own record outranks (0.0.0.1).
	peer := &dns.A{
		Hdr: dns.RR_Header{Name: "myhost.local.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 120},
		A:   net.ParseIP("0.0.0.1"),
	}

	g.Observe(peer, clk.Now())

	if renamed {
		t.Fatal("expected no rename when our record outranks the peer's")
	}
	if g.State() != Registering {
		t.Fatalf("expected Registering to continue unaffected, got %s", g.State())
	}
}

func TestFreeSendsGoodbyeOnlyWhenEstablished(t *testing.T) {
	g, clk, sent := newTestGroup()
	g.Add(aHost("myhost.local."))
	g.Commit()

	g.Free()
	if len(*sent) != 1 {
		t.Fatalf("expected no goodbye before Established (only the probe), got %d packets", len(*sent))
	}

	g2, clk2, sent2 := newTestGroup()
	g2.Add(aHost("myhost.local."))
	g2.Commit()
	fire(g2, clk2, 250*time.Millisecond)
	fire(g2, clk2, 250*time.Millisecond)
	fire(g2, clk2, 250*time.Millisecond)
	fire(g2, clk2, time.Second)
	if g2.State() != Established {
		t.Fatalf("expected Established, got %s", g2.State())
	}

	before := len(*sent2)
	g2.Free()
	if len(*sent2) != before+1 {
		t.Fatalf("expected a goodbye packet on Free from Established, got %d new packets", len(*sent2)-before)
	}

	_ = clk
}
