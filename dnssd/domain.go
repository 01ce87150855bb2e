package dnssd

import "github.com/avahi-go/mdnscore/names"

// TypeEnumDomain returns the DNS name queried to perform "service type
// enumeration" within domain.
//
// See https://tools.ietf.org/html/rfc6763#section-9
func TypeEnumDomain(domain names.FQDN) names.FQDN {
	return names.Rel("_services._dns-sd._udp").Qualify(domain)
}

// SubTypeEnumDomain returns the DNS name queried to perform "selective
// instance enumeration" for a service sub-type within domain.
//
// See https://tools.ietf.org/html/rfc6763#section-7.1
func SubTypeEnumDomain(subtype names.Label, service ServiceType, domain names.FQDN) names.FQDN {
	return names.MustParseFQDN(
		string(subtype) + "._sub." + service.String() + "." + domain.String(),
	)
}

// InstanceEnumDomain returns the DNS name queried to perform "service
// instance enumeration" (aka "browse") for t within domain.
//
// See https://tools.ietf.org/html/rfc6763#section-4.
func InstanceEnumDomain(t ServiceType, domain names.FQDN) names.FQDN {
	return t.Qualify(domain)
}

// The well-known domain-browsing sub-labels of RFC 6763 §11, used to
// construct the "lb"/"b"/"db"/"r"/"dr" meta-query names beneath
// "_dns-sd._udp.<domain>.".
const (
	// SubLabelLegacyBrowse is "lb", the legacy browsing domain.
	SubLabelLegacyBrowse = names.Label("lb")

	// SubLabelBrowse is "b", the recommended browsing domain.
	SubLabelBrowse = names.Label("b")

	// SubLabelDefaultBrowse is "db", the default browsing domain.
	SubLabelDefaultBrowse = names.Label("db")

	// SubLabelRegister is "r", the recommended registration domain.
	SubLabelRegister = names.Label("r")

	// SubLabelDefaultRegister is "dr", the default registration domain.
	SubLabelDefaultRegister = names.Label("dr")
)

// DomainEnumDomain returns the DNS name queried to discover, via PTR
// records, the set of domains recommended for the given purpose (one of the
// SubLabel* constants) within domain, per RFC 6763 §11.
func DomainEnumDomain(subLabel names.Label, domain names.FQDN) names.FQDN {
	return names.MustParseFQDN(
		string(subLabel) + "._dns-sd._udp." + domain.String(),
	)
}
