package dnssd

import (
	"errors"
	"strings"

	"github.com/avahi-go/mdnscore/names"
)

// InstanceName is an implementation of names.Name representing an
// unqualified DNS-SD service instance name, such as "Living Room TV".
//
// Per RFC 6763 §4.3, an InstanceName may itself contain dots; its String
// form backslash-escapes them (and literal backslashes) following the usual
// DNS master-file convention.
type InstanceName string

// SplitInstanceName parses the first label of n as a backslash-escaped
// instance name. If n contains only a single label, tail is nil.
func SplitInstanceName(n names.Name) (head InstanceName, tail names.Name) {
	s := n.String()

	var b strings.Builder
	b.Grow(len(s))

	esc := false
	for i := 0; i < len(s); i++ {
		c := s[i]

		switch {
		case esc:
			b.WriteByte(c)
			esc = false
		case c == '\\':
			esc = true
		case c == '.':
			head = InstanceName(b.String())
			if i < len(s)-1 {
				tail = names.MustParse(s[i+1:])
			}
			return
		default:
			b.WriteByte(c)
		}
	}

	if esc {
		b.WriteByte('\\')
	}

	head = InstanceName(b.String())
	return
}

// IsQualified returns false.
func (n InstanceName) IsQualified() bool {
	return false
}

// Qualify returns a fully-qualified domain name produced by qualifying this
// name with f.
func (n InstanceName) Qualify(f names.FQDN) names.FQDN {
	return names.MustParseFQDN(n.String() + "." + f.String())
}

// Labels returns the DNS label that forms this name.
func (n InstanceName) Labels() []names.Label {
	return []names.Label{names.Label(n.String())}
}

// Validate returns nil if the name is valid.
func (n InstanceName) Validate() error {
	if n == "" {
		return errors.New("instance name must not be empty")
	}
	return nil
}

// String returns the backslash-escaped representation of the name as used
// by DNS master files. It panics if the name is not valid.
func (n InstanceName) String() string {
	if err := n.Validate(); err != nil {
		panic(err)
	}

	s := string(n)
	var b strings.Builder
	b.Grow(len(s) * 2)

	for {
		i := strings.IndexAny(s, `.\`)
		if i == -1 {
			b.WriteString(s)
			break
		}

		b.WriteString(s[:i])
		b.WriteByte('\\')
		b.WriteByte(s[i])
		s = s[i+1:]
	}

	return b.String()
}

// DNSString returns the wire-form representation used by
// github.com/miekg/dns.
func (n InstanceName) DNSString() string {
	return n.String() + "."
}
