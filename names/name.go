// Package names provides typed representations of the various flavors of DNS
// name (fully-qualified, relative, single-label) used throughout the mDNS /
// DNS-SD core.
package names

import "strings"

// Name is a DNS name of some kind.
//
// Any of the methods except Validate() MAY panic if the name is invalid.
type Name interface {
	// IsQualified returns true if the name is fully-qualified.
	IsQualified() bool

	// Qualify returns a fully-qualified domain name produced by "qualifying"
	// this name with f.
	//
	// If this name is already qualified, it is returned unchanged.
	Qualify(f FQDN) FQDN

	// Labels returns the DNS labels that form this name.
	Labels() []Label

	// Validate returns nil if the name is valid.
	Validate() error

	// String returns a representation of the name as used by DNS systems.
	// It panics if the name is not valid.
	String() string

	// DNSString returns the wire-form (trailing-dot) representation used by
	// github.com/miekg/dns.
	DNSString() string
}

// Parse parses an arbitrary internet name.
func Parse(n string) (Name, error) {
	var name Name

	switch {
	case n == "":
		name = Label(n)
	case strings.HasSuffix(n, "."):
		name = FQDN(n)
	case strings.Contains(n, "."):
		name = Rel(n)
	default:
		name = Label(n)
	}

	return name, name.Validate()
}

// MustParse parses an arbitrary internet name.
// It panics if n is invalid.
func MustParse(n string) Name {
	v, err := Parse(n)
	if err != nil {
		panic(err)
	}
	return v
}
