// Package mdns assembles the per-interface mDNS state — the cache, the
// query accumulator, the response scheduler, and the set of entry groups —
// into a runnable Server, and drives it from incoming UDP packets (spec
// §4.9).
package mdns

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"

	"github.com/avahi-go/mdnscore/cache"
	"github.com/avahi-go/mdnscore/entrygroup"
	"github.com/avahi-go/mdnscore/internal/transport"
	"github.com/avahi-go/mdnscore/query"
	"github.com/avahi-go/mdnscore/record"
	"github.com/avahi-go/mdnscore/respond"
	"github.com/avahi-go/mdnscore/timeevent"
)

// command is a unit of work executed on the server's single event-loop
// goroutine.
type command func(now time.Time)

// Server is a multicast DNS responder and resolver for a single network
// interface: it owns a Cache, a query Accumulator, a response Scheduler, and
// zero or more entry Groups, all driven from one goroutine per spec §5.
type Server struct {
	Queue       *timeevent.Queue
	Clock       timeevent.Clock
	Cache       *cache.Cache
	Accumulator *query.Accumulator
	Scheduler   *respond.Scheduler

	iface       *net.Interface
	disableIPv4 bool
	disableIPv6 bool
	logger      logging.Logger

	transports []transport.Transport
	selfAddrs  map[string]bool
	groups     []*entrygroup.Group

	done     chan struct{}
	commands chan command
}

// New returns a Server configured by options. The server's Cache,
// Accumulator, and Scheduler are ready to use once New returns, but nothing
// is sent or received until Run is called.
func New(options ...Option) (*Server, error) {
	clk := timeevent.RealClock{}
	q := timeevent.New(clk)
	c := cache.New(q, clk)

	s := &Server{
		Queue:     q,
		Clock:     clk,
		Cache:     c,
		selfAddrs: map[string]bool{},
		done:      make(chan struct{}),
		commands:  make(chan command),
	}

	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	c.Logger = s.logger

	s.Accumulator = query.New(q, clk, c, s.sendMulticast)
	s.Accumulator.Logger = s.logger
	c.Refresh = func(k record.Key) {
		s.Accumulator.Register(k, false)
	}

	s.Scheduler = respond.New(q, clk)
	s.Scheduler.Logger = s.logger

	if s.iface == nil {
		iface, err := internetInterface()
		if err != nil {
			return nil, err
		}
		s.iface = &iface
	}

	return s, nil
}

// NewGroup returns a new, Uncommitted entry Group bound to this server for
// service records (SRV/PTR/TXT): its probes and announcements are sent via
// the server's transports, and collisions are renamed via the service
// convention (altname.NextService).
func (s *Server) NewGroup() *entrygroup.Group {
	g := entrygroup.New(s.Queue, s.Clock)
	return s.bind(g)
}

// NewHostGroup returns a new, Uncommitted entry Group pre-loaded with the
// given address records (typically A/AAAA for one hostname) and bound to
// this server; collisions are renamed via the host convention
// (altname.NextHost).
func (s *Server) NewHostGroup(addrs ...dns.RR) *entrygroup.Group {
	g := entrygroup.NewHostGroup(s.Queue, s.Clock, addrs...)
	return s.bind(g)
}

func (s *Server) bind(g *entrygroup.Group) *entrygroup.Group {
	g.Logger = s.logger
	g.Send = s.sendAuthoritative

	s.groups = append(s.groups, g)
	return g
}

// sendMulticast transmits m as a multicast packet on every active
// transport, used for outgoing questions from the query accumulator.
func (s *Server) sendMulticast(m *dns.Msg) error {
	var firstErr error
	for _, t := range s.transports {
		if err := s.writeTo(t, t.Group(), m); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// sendAuthoritative transmits m (a probe, announcement, or goodbye) from an
// entry group, identically to sendMulticast.
func (s *Server) sendAuthoritative(m *dns.Msg) error {
	return s.sendMulticast(m)
}

func (s *Server) writeTo(t transport.Transport, dest *net.UDPAddr, m *dns.Msg) error {
	buf, err := m.Pack()
	if err != nil {
		return err
	}

	out := &transport.OutboundPacket{
		Destination: transport.Endpoint{Address: dest},
		Data:        buf,
	}
	return t.Write(out)
}

// ownedRecords returns every record currently asserted by an Established
// entry group.
func (s *Server) ownedRecords() []*record.Record {
	var out []*record.Record
	for _, g := range s.groups {
		if g.State() != entrygroup.Established {
			continue
		}
		out = append(out, g.Records()...)
	}
	return out
}

// Run listens for and responds to mDNS messages until ctx is canceled or an
// unrecoverable error occurs.
func (s *Server) Run(ctx context.Context) error {
	if s.disableIPv4 && s.disableIPv6 {
		return errors.New("both IPv4 and IPv6 are disabled")
	}

	addrs, err := interfaceAddrStrings(s.iface)
	if err != nil {
		return err
	}
	s.selfAddrs = addrs

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if !s.disableIPv4 {
		t := &transport.IPv4Transport{Logger: s.logger}
		s.transports = append(s.transports, t)
		g.Go(func() error { return s.receive(ctx, t) })
	}

	if !s.disableIPv6 {
		t := &transport.IPv6Transport{Logger: s.logger}
		s.transports = append(s.transports, t)
		g.Go(func() error { return s.receive(ctx, t) })
	}

	g.Go(func() error { return s.run(ctx) })

	err = g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

// run is the single event-loop goroutine: it serializes incoming commands
// with the time-event queue's due callbacks, so the cache, accumulator,
// scheduler, and entry groups are never touched concurrently.
func (s *Server) run(ctx context.Context) error {
	defer close(s.done)

	if err := timeevent.Sleep(ctx, s.Clock, timeevent.RandBetween(0, 250*time.Millisecond)); err != nil {
		return err
	}

	for {
		var timerC <-chan time.Time
		if next, ok := s.Queue.Next(); ok {
			d := next.Sub(s.Clock.Now())
			if d < 0 {
				d = 0
			}
			timerC = s.Clock.After(d)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-s.commands:
			c(s.Clock.Now())
		case <-timerC:
			s.Queue.Fire(s.Clock.Now())
		}
	}
}

func (s *Server) receive(ctx context.Context, t transport.Transport) error {
	if err := t.Listen(s.iface); err != nil {
		return err
	}
	defer t.Close()

	go func() {
		<-ctx.Done()
		_ = t.Close()
	}()

	for {
		in, err := t.Read()
		if err != nil {
			if isClosedError(err) {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}
			return err
		}

		m, err := in.Message()
		if err != nil {
			logging.Log(s.logger, "error parsing mDNS message: %s", err)
			in.Close()
			continue
		}

		if m.Truncated {
			logging.DebugString(s.logger, "received mDNS message with non-zero TC flag")
		}

		var c command
		if m.Response {
			c = func(now time.Time) { s.handleResponse(in, m, now) }
		} else {
			c = func(now time.Time) { s.handleQuery(in, m, now) }
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case s.commands <- c:
		}
	}
}

func (s *Server) handleQuery(in *transport.InboundPacket, m *dns.Msg, now time.Time) {
	defer in.Close()

	owned := s.ownedRecords()

	// A peer's probe carries its tentative record in the Authority section
	// (see entrygroup.sendProbe); feed it to every group's collision
	// detector exactly as a Response's Answer/Ns records are in
	// handleResponse, so a simultaneous-probe race is caught even though
	// no Response packet is ever sent.
	for _, rr := range m.Ns {
		for _, grp := range s.groups {
			grp.Observe(rr, now)
		}
	}

	for _, q := range m.Question {
		unicast, plain := record.WantsUnicastResponse(q)
		s.Accumulator.ObserveQuestion(plain, now)

		pattern := record.Key{Name: plain.Name, Class: plain.Qclass, Type: plain.Qtype}

		var candidates []*record.Record
		for _, r := range owned {
			if pattern.Matches(r.Key()) {
				candidates = append(candidates, r)
			}
		}

		askQ := plain
		if unicast {
			askQ = record.SetUnicastRequest(plain)
		}

		s.Scheduler.Answer(in, askQ, candidates, m.Answer, now)
	}
}

func (s *Server) handleResponse(in *transport.InboundPacket, m *dns.Msg, now time.Time) {
	defer in.Close()

	self := s.selfAddrs[in.Source.Address.IP.String()]

	// A packet looped back from our own interface is neither a cacheable
	// peer assertion nor a potential collision: it's an echo of our own
	// probe or announcement.
	if self {
		return
	}

	for _, rr := range append(append([]dns.RR{}, m.Answer...), m.Ns...) {
		s.Cache.Put(in.Source.Address, record.New(rr), now)

		for _, grp := range s.groups {
			grp.Observe(rr, now)
		}
	}
}

func isClosedError(err error) bool {
	for {
		e, ok := err.(*net.OpError)
		if !ok {
			return false
		}
		if e.Err.Error() == "use of closed network connection" {
			return true
		}
		err = e.Err
	}
}
