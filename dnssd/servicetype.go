package dnssd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/avahi-go/mdnscore/names"
)

// ServiceType is an implementation of names.Name representing a DNS-SD
// service type, such as "_http._tcp". Sub-types (RFC 6763 §7.1) are not
// part of a ServiceType; they are passed separately, as to
// NewServiceBrowserForSubtype.
type ServiceType string

// IsQualified returns false.
func (n ServiceType) IsQualified() bool {
	return false
}

// Qualify returns a fully-qualified domain name produced by qualifying this
// name with f.
func (n ServiceType) Qualify(f names.FQDN) names.FQDN {
	return names.MustParseFQDN(n.String() + "." + f.String())
}

// Labels returns the DNS labels that form this name.
func (n ServiceType) Labels() []names.Label {
	parts := strings.Split(n.String(), ".")
	labels := make([]names.Label, len(parts))
	for i, p := range parts {
		labels[i] = names.Label(p)
	}
	return labels
}

// Validate returns nil if the name is non-empty and has no leading or
// trailing dot. It does not check the number of labels, their leading
// underscores, or that the last label is "_tcp" or "_udp".
func (n ServiceType) Validate() error {
	if n == "" {
		return errors.New("service type must not be empty")
	}
	if strings.HasPrefix(string(n), ".") {
		return fmt.Errorf("service type '%s' is invalid, unexpected leading dot", n)
	}
	if strings.HasSuffix(string(n), ".") {
		return fmt.Errorf("service type '%s' is invalid, unexpected trailing dot", n)
	}
	return nil
}

// String returns a representation of the name as used by DNS systems. It
// panics if the name is not valid.
func (n ServiceType) String() string {
	if err := n.Validate(); err != nil {
		panic(err)
	}
	return string(n)
}

// DNSString returns the wire-form representation used by
// github.com/miekg/dns.
func (n ServiceType) DNSString() string {
	return n.String() + "."
}

// Protocol returns "_tcp" or "_udp", the transport-protocol label of the
// service type.
func (n ServiceType) Protocol() string {
	labels := n.Labels()
	if len(labels) < 2 {
		return ""
	}
	return string(labels[len(labels)-1])
}
