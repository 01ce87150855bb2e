package dnssd

import (
	"time"

	"github.com/miekg/dns"

	"github.com/avahi-go/mdnscore/names"
)

// Instance is a single DNS-SD service instance, assembled from a PTR, SRV,
// and TXT record sharing an instance name, plus the A/AAAA records of its
// target host.
type Instance struct {
	// Name is the unqualified, human-readable instance name, such as
	// "Living Room TV".
	Name InstanceName

	// Type is the service type, such as "_airplay._tcp".
	Type ServiceType

	// Domain is the domain the instance is advertised within, typically
	// "local.".
	Domain names.FQDN

	// Host is the fully-qualified name of the machine hosting the service.
	Host names.FQDN

	// Port is the TCP or UDP port the service listens on.
	Port uint16

	// Text is the instance's TXT record key/value pairs.
	Text *Text

	// Addrs are the resolved IPv4/IPv6 addresses of Host, if known.
	Addrs []dns.RR

	// TTL is the TTL to use for records describing this instance.
	TTL time.Duration
}

// ServiceInstanceName returns the fully-qualified "service instance name" of
// i: "<Instance>.<Service>.<Domain>", per RFC 6763 §4.1.
func (i *Instance) ServiceInstanceName() names.FQDN {
	return i.Name.Qualify(i.Type.Qualify(i.Domain))
}

// PTR returns the PTR record that maps the service type to this instance,
// as asserted during service instance enumeration.
func (i *Instance) PTR() *dns.PTR {
	return &dns.PTR{
		Hdr: dns.RR_Header{
			Name:   InstanceEnumDomain(i.Type, i.Domain).String(),
			Rrtype: dns.TypePTR,
			Class:  dns.ClassINET,
			Ttl:    uint32(i.TTL / time.Second),
		},
		Ptr: i.ServiceInstanceName().String(),
	}
}

// SRV returns the instance's SRV record.
func (i *Instance) SRV() *dns.SRV {
	return &dns.SRV{
		Hdr: dns.RR_Header{
			Name:   i.ServiceInstanceName().String(),
			Rrtype: dns.TypeSRV,
			Class:  dns.ClassINET,
			Ttl:    uint32(i.TTL / time.Second),
		},
		Priority: 0,
		Weight:   0,
		Port:     i.Port,
		Target:   i.Host.String(),
	}
}

// TXT returns the instance's TXT record.
func (i *Instance) TXT() *dns.TXT {
	text := i.Text
	if text == nil {
		text = &Text{}
	}

	return &dns.TXT{
		Hdr: dns.RR_Header{
			Name:   i.ServiceInstanceName().String(),
			Rrtype: dns.TypeTXT,
			Class:  dns.ClassINET,
			Ttl:    uint32(i.TTL / time.Second),
		},
		Txt: text.Pairs(),
	}
}

// Records returns every record describing the instance: PTR, SRV, TXT, and
// any resolved address records.
func (i *Instance) Records() []dns.RR {
	rrs := []dns.RR{i.PTR(), i.SRV(), i.TXT()}
	return append(rrs, i.Addrs...)
}
