package dnssd

import (
	"strings"

	"github.com/miekg/dns"

	"github.com/avahi-go/mdnscore/browse"
	"github.com/avahi-go/mdnscore/cache"
	"github.com/avahi-go/mdnscore/names"
	"github.com/avahi-go/mdnscore/query"
	"github.com/avahi-go/mdnscore/record"
	"github.com/avahi-go/mdnscore/timeevent"
)

// ServiceTypeEvent reports a service type becoming available or
// disappearing during service type enumeration (RFC 6763 §9).
type ServiceTypeEvent struct {
	Kind browse.EventKind
	Type ServiceType
}

// ServiceTypeBrowser performs "service type enumeration": discovering which
// service types have instances advertised within a domain.
type ServiceTypeBrowser struct {
	Domain   names.FQDN
	Listener func(ServiceTypeEvent)

	inner *browse.Browser
}

// NewServiceTypeBrowser returns a ServiceTypeBrowser for domain.
func NewServiceTypeBrowser(q *timeevent.Queue, clk timeevent.Clock, c *cache.Cache, acc *query.Accumulator, domain names.FQDN) *ServiceTypeBrowser {
	b := &ServiceTypeBrowser{Domain: domain}

	pattern := record.NewKey(TypeEnumDomain(domain).String(), dns.TypePTR)
	b.inner = browse.New(q, clk, c, acc, pattern)
	b.inner.Listener = b.handle
	return b
}

// Start begins browsing.
func (b *ServiceTypeBrowser) Start() { b.inner.Start() }

// Stop stops browsing.
func (b *ServiceTypeBrowser) Stop() { b.inner.Stop() }

func (b *ServiceTypeBrowser) handle(ev browse.Event) {
	if ev.Kind != browse.EventNew && ev.Kind != browse.EventRemove {
		return
	}

	ptr, ok := ev.Record.RR.(*dns.PTR)
	if !ok {
		return
	}

	t := strings.TrimSuffix(ptr.Ptr, "."+b.Domain.String())
	if b.Listener != nil {
		b.Listener(ServiceTypeEvent{Kind: ev.Kind, Type: ServiceType(t)})
	}
}

// ServiceEvent reports a service instance becoming available or
// disappearing during service instance enumeration (RFC 6763 §4).
type ServiceEvent struct {
	Kind     browse.EventKind
	Instance InstanceName
}

// ServiceBrowser performs "service instance enumeration" (aka "browse") for
// a single service type within a domain, optionally restricted to a
// sub-type (RFC 6763 §7.1's "selective instance enumeration").
type ServiceBrowser struct {
	Type     ServiceType
	Domain   names.FQDN
	Subtype  names.Label
	Listener func(ServiceEvent)

	inner *browse.Browser
}

// NewServiceBrowser returns a ServiceBrowser for every instance of t within
// domain.
func NewServiceBrowser(q *timeevent.Queue, clk timeevent.Clock, c *cache.Cache, acc *query.Accumulator, t ServiceType, domain names.FQDN) *ServiceBrowser {
	return newServiceBrowser(q, clk, c, acc, t, domain, "")
}

// NewServiceBrowserForSubtype returns a ServiceBrowser restricted to
// instances of t that advertise subtype within domain (RFC 6763 §7.1), e.g.
// browsing "_printer._sub._http._tcp.local." rather than every
// "_http._tcp.local." instance.
func NewServiceBrowserForSubtype(q *timeevent.Queue, clk timeevent.Clock, c *cache.Cache, acc *query.Accumulator, subtype names.Label, t ServiceType, domain names.FQDN) *ServiceBrowser {
	return newServiceBrowser(q, clk, c, acc, t, domain, subtype)
}

func newServiceBrowser(q *timeevent.Queue, clk timeevent.Clock, c *cache.Cache, acc *query.Accumulator, t ServiceType, domain names.FQDN, subtype names.Label) *ServiceBrowser {
	b := &ServiceBrowser{Type: t, Domain: domain, Subtype: subtype}

	name := InstanceEnumDomain(t, domain)
	if subtype != "" {
		name = SubTypeEnumDomain(subtype, t, domain)
	}

	pattern := record.NewKey(name.String(), dns.TypePTR)
	b.inner = browse.New(q, clk, c, acc, pattern)
	b.inner.Listener = b.handle
	return b
}

// Start begins browsing.
func (b *ServiceBrowser) Start() { b.inner.Start() }

// Stop stops browsing.
func (b *ServiceBrowser) Stop() { b.inner.Stop() }

func (b *ServiceBrowser) handle(ev browse.Event) {
	if ev.Kind != browse.EventNew && ev.Kind != browse.EventRemove {
		return
	}

	ptr, ok := ev.Record.RR.(*dns.PTR)
	if !ok {
		return
	}

	instance, _ := SplitInstanceName(names.MustParse(ptr.Ptr))
	if b.Listener != nil {
		b.Listener(ServiceEvent{Kind: ev.Kind, Instance: instance})
	}
}

// DomainEvent reports a recommended browsing/registration domain appearing
// or disappearing, per RFC 6763 §11.
type DomainEvent struct {
	Kind   browse.EventKind
	Domain names.FQDN
}

// DomainBrowser discovers domains recommended for browsing or registration,
// as advertised under one of the RFC 6763 §11 sub-labels
// (SubLabelBrowse, SubLabelDefaultBrowse, SubLabelRegister,
// SubLabelDefaultRegister, SubLabelLegacyBrowse).
type DomainBrowser struct {
	SubLabel names.Label
	Domain   names.FQDN
	Listener func(DomainEvent)

	inner *browse.Browser
}

// NewDomainBrowser returns a DomainBrowser for the given sub-label within
// domain.
func NewDomainBrowser(q *timeevent.Queue, clk timeevent.Clock, c *cache.Cache, acc *query.Accumulator, subLabel names.Label, domain names.FQDN) *DomainBrowser {
	b := &DomainBrowser{SubLabel: subLabel, Domain: domain}

	pattern := record.NewKey(DomainEnumDomain(subLabel, domain).String(), dns.TypePTR)
	b.inner = browse.New(q, clk, c, acc, pattern)
	b.inner.Listener = b.handle
	return b
}

// Start begins browsing.
func (b *DomainBrowser) Start() { b.inner.Start() }

// Stop stops browsing.
func (b *DomainBrowser) Stop() { b.inner.Stop() }

func (b *DomainBrowser) handle(ev browse.Event) {
	if ev.Kind != browse.EventNew && ev.Kind != browse.EventRemove {
		return
	}

	ptr, ok := ev.Record.RR.(*dns.PTR)
	if !ok {
		return
	}

	if b.Listener != nil {
		b.Listener(DomainEvent{Kind: ev.Kind, Domain: names.MustParseFQDN(ptr.Ptr)})
	}
}
