package dnssd

import (
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/avahi-go/mdnscore/browse"
	"github.com/avahi-go/mdnscore/cache"
	"github.com/avahi-go/mdnscore/names"
	"github.com/avahi-go/mdnscore/query"
	"github.com/avahi-go/mdnscore/record"
	"github.com/avahi-go/mdnscore/timeevent"
)

// defaultResolveTimeout bounds how long a resolver waits for a complete
// answer before reporting ResolveTimeout, unless overridden via the
// resolver's Timeout field.
const defaultResolveTimeout = time.Second

func resolveTimeoutOrDefault(t time.Duration) time.Duration {
	if t <= 0 {
		return defaultResolveTimeout
	}
	return t
}

// ResolveEventKind identifies the kind of event a resolver listener
// receives.
type ResolveEventKind int

// The kinds of resolve event.
const (
	// ResolveFound indicates a complete (or updated) answer is available.
	ResolveFound ResolveEventKind = iota

	// ResolveTimeout indicates no answer arrived within the resolver's
	// configured timeout (defaultResolveTimeout unless overridden).
	ResolveTimeout
)

// HostEvent reports the address records of a resolved host changing.
type HostEvent struct {
	Kind  ResolveEventKind
	Addrs []dns.RR
}

// HostResolver resolves a hostname to its current set of A/AAAA records.
type HostResolver struct {
	Host     names.FQDN
	Listener func(HostEvent)

	// Timeout overrides defaultResolveTimeout when positive.
	Timeout time.Duration

	inner   *browse.Browser
	addrs   map[string]dns.RR
	timeout *timeevent.Handle
	queue   *timeevent.Queue
	clock   timeevent.Clock
}

// NewHostResolver returns a HostResolver for host.
func NewHostResolver(q *timeevent.Queue, clk timeevent.Clock, c *cache.Cache, acc *query.Accumulator, host names.FQDN) *HostResolver {
	r := &HostResolver{
		Host:  host,
		addrs: map[string]dns.RR{},
		queue: q,
		clock: clk,
	}

	pattern := record.Key{Name: host.String(), Class: dns.ClassINET, Type: dns.TypeANY}
	r.inner = browse.New(q, clk, c, acc, pattern)
	r.inner.Listener = r.handle
	return r
}

// Start begins resolving.
func (r *HostResolver) Start() {
	r.inner.Start()
	r.timeout = r.queue.Schedule(r.clock.Now().Add(resolveTimeoutOrDefault(r.Timeout)), func(time.Time) {
		if len(r.addrs) == 0 && r.Listener != nil {
			r.Listener(HostEvent{Kind: ResolveTimeout})
		}
	})
}

// Stop stops resolving.
func (r *HostResolver) Stop() {
	r.inner.Stop()
	if r.timeout != nil {
		r.queue.Cancel(r.timeout)
		r.timeout = nil
	}
}

// Addrs returns the host's currently-known address records.
func (r *HostResolver) Addrs() []dns.RR {
	out := make([]dns.RR, 0, len(r.addrs))
	for _, rr := range r.addrs {
		out = append(out, rr)
	}
	return out
}

func (r *HostResolver) handle(ev browse.Event) {
	if ev.Record == nil {
		return
	}

	switch ev.Record.RR.(type) {
	case *dns.A, *dns.AAAA:
	default:
		return
	}

	switch ev.Kind {
	case browse.EventNew:
		r.addrs[ev.Record.Fingerprint()] = ev.Record.RR
	case browse.EventRemove:
		delete(r.addrs, ev.Record.Fingerprint())
	default:
		return
	}

	if r.Listener != nil {
		r.Listener(HostEvent{Kind: ResolveFound, Addrs: r.Addrs()})
	}
}

// ResolveEvent reports a resolved (or re-resolved) service instance.
type ResolveEvent struct {
	Kind     ResolveEventKind
	Instance *Instance
}

// ServiceResolver resolves a single service instance's SRV, TXT, and address
// records into a complete Instance.
type ServiceResolver struct {
	Name     InstanceName
	Type     ServiceType
	Domain   names.FQDN
	Listener func(ResolveEvent)

	// Timeout overrides defaultResolveTimeout when positive, for both this
	// resolver and the HostResolver it creates to resolve the SRV target.
	Timeout time.Duration

	srvBrowser *browse.Browser
	txtBrowser *browse.Browser
	hostRes    *HostResolver

	queue   *timeevent.Queue
	clock   timeevent.Clock
	cache   *cache.Cache
	acc     *query.Accumulator
	timeout *timeevent.Handle

	srv *dns.SRV
	txt *dns.TXT
}

// NewServiceResolver returns a ServiceResolver for the instance named name,
// of type t, within domain.
func NewServiceResolver(q *timeevent.Queue, clk timeevent.Clock, c *cache.Cache, acc *query.Accumulator, name InstanceName, t ServiceType, domain names.FQDN) *ServiceResolver {
	r := &ServiceResolver{
		Name:   name,
		Type:   t,
		Domain: domain,
		queue:  q,
		clock:  clk,
		cache:  c,
		acc:    acc,
	}

	instance := name.Qualify(t.Qualify(domain))

	r.srvBrowser = browse.New(q, clk, c, acc, record.NewKey(instance.String(), dns.TypeSRV))
	r.srvBrowser.Listener = r.handleSRV

	r.txtBrowser = browse.New(q, clk, c, acc, record.NewKey(instance.String(), dns.TypeTXT))
	r.txtBrowser.Listener = r.handleTXT

	return r
}

// Start begins resolving.
func (r *ServiceResolver) Start() {
	r.srvBrowser.Start()
	r.txtBrowser.Start()
	r.timeout = r.queue.Schedule(r.clock.Now().Add(resolveTimeoutOrDefault(r.Timeout)), func(time.Time) {
		complete := r.srv != nil && r.txt != nil && r.hostRes != nil && len(r.hostRes.Addrs()) > 0
		if !complete && r.Listener != nil {
			r.Listener(ResolveEvent{Kind: ResolveTimeout})
		}
	})
}

// Stop stops resolving.
func (r *ServiceResolver) Stop() {
	r.srvBrowser.Stop()
	r.txtBrowser.Stop()
	if r.hostRes != nil {
		r.hostRes.Stop()
		r.hostRes = nil
	}
	if r.timeout != nil {
		r.queue.Cancel(r.timeout)
		r.timeout = nil
	}
}

func (r *ServiceResolver) handleSRV(ev browse.Event) {
	if ev.Record == nil {
		return
	}

	srv, ok := ev.Record.RR.(*dns.SRV)
	if !ok {
		return
	}

	switch ev.Kind {
	case browse.EventNew:
		r.srv = srv
		r.rebindHost(names.MustParseFQDN(srv.Target))
	case browse.EventRemove:
		r.srv = nil
	default:
		return
	}

	r.emit()
}

func (r *ServiceResolver) handleTXT(ev browse.Event) {
	if ev.Record == nil {
		return
	}

	txt, ok := ev.Record.RR.(*dns.TXT)
	if !ok {
		return
	}

	switch ev.Kind {
	case browse.EventNew:
		r.txt = txt
	case browse.EventRemove:
		r.txt = nil
	default:
		return
	}

	r.emit()
}

func (r *ServiceResolver) rebindHost(host names.FQDN) {
	if r.hostRes != nil {
		r.hostRes.Stop()
	}

	r.hostRes = NewHostResolver(r.queue, r.clock, r.cache, r.acc, host)
	r.hostRes.Listener = func(HostEvent) { r.emit() }
	r.hostRes.Timeout = r.Timeout
	r.hostRes.Start()
}

func (r *ServiceResolver) emit() {
	if r.srv == nil || r.txt == nil || r.hostRes == nil || r.Listener == nil {
		return
	}

	addrs := r.hostRes.Addrs()
	if len(addrs) == 0 {
		return
	}

	text := NewText(r.txt.Txt...)

	ttl := time.Duration(r.srv.Hdr.Ttl) * time.Second

	r.Listener(ResolveEvent{
		Kind: ResolveFound,
		Instance: &Instance{
			Name:   r.Name,
			Type:   r.Type,
			Domain: r.Domain,
			Host:   names.MustParseFQDN(r.srv.Target),
			Port:   r.srv.Port,
			Text:   text,
			Addrs:  addrs,
			TTL:    ttl,
		},
	})
}

// AddressEvent reports the hostname(s) a reverse (PTR) lookup of an address
// currently resolves to.
type AddressEvent struct {
	Kind  ResolveEventKind
	Names []names.FQDN
}

// AddressResolver performs a reverse lookup: given an IPv4 or IPv6 address,
// it discovers the hostname(s) asserting that address via a PTR query under
// "*.in-addr.arpa." or "*.ip6.arpa.", per RFC 6762 §12.
type AddressResolver struct {
	Listener func(AddressEvent)

	// Timeout overrides defaultResolveTimeout when positive.
	Timeout time.Duration

	inner   *browse.Browser
	queue   *timeevent.Queue
	clock   timeevent.Clock
	timeout *timeevent.Handle
	found   bool
	hosts   map[string]names.FQDN
}

// NewAddressResolver returns an AddressResolver for addr. It returns
// (nil, false) if addr is not a valid IP address.
func NewAddressResolver(q *timeevent.Queue, clk timeevent.Clock, c *cache.Cache, acc *query.Accumulator, addr net.IP) (*AddressResolver, bool) {
	arpa, ok := ipToArpa(addr)
	if !ok {
		return nil, false
	}

	r := &AddressResolver{queue: q, clock: clk}
	pattern := record.NewKey(arpa, dns.TypePTR)
	r.inner = browse.New(q, clk, c, acc, pattern)
	r.inner.Listener = r.handle
	return r, true
}

// Start begins resolving.
func (r *AddressResolver) Start() {
	r.inner.Start()
	r.timeout = r.queue.Schedule(r.clock.Now().Add(resolveTimeoutOrDefault(r.Timeout)), func(time.Time) {
		if !r.found && r.Listener != nil {
			r.Listener(AddressEvent{Kind: ResolveTimeout})
		}
	})
}

// Stop stops resolving.
func (r *AddressResolver) Stop() {
	r.inner.Stop()
	if r.timeout != nil {
		r.queue.Cancel(r.timeout)
		r.timeout = nil
	}
}

func (r *AddressResolver) handle(ev browse.Event) {
	if ev.Kind != browse.EventNew && ev.Kind != browse.EventRemove {
		return
	}

	ptr, ok := ev.Record.RR.(*dns.PTR)
	if !ok {
		return
	}

	if r.hosts == nil {
		r.hosts = map[string]names.FQDN{}
	}
	if ev.Kind == browse.EventNew {
		r.hosts[ev.Record.Fingerprint()] = names.MustParseFQDN(ptr.Ptr)
	} else {
		delete(r.hosts, ev.Record.Fingerprint())
	}
	r.found = len(r.hosts) > 0

	current := make([]names.FQDN, 0, len(r.hosts))
	for _, n := range r.hosts {
		current = append(current, n)
	}

	if r.Listener != nil {
		r.Listener(AddressEvent{Kind: ResolveFound, Names: current})
	}
}
