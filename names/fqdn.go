package names

import (
	"errors"
	"fmt"
	"strings"
)

// FQDN is a fully-qualified internet domain name, such as "example.org.".
type FQDN string

// ParseFQDN parses n as a fully-qualified domain name.
func ParseFQDN(n string) (FQDN, error) {
	v := FQDN(n)
	return v, v.Validate()
}

// MustParseFQDN parses n as a fully-qualified domain name.
// It panics if n is invalid.
func MustParseFQDN(n string) FQDN {
	v, err := ParseFQDN(n)
	if err != nil {
		panic(err)
	}
	return v
}

// IsQualified returns true.
func (n FQDN) IsQualified() bool {
	return true
}

// Qualify returns n unchanged.
func (n FQDN) Qualify(FQDN) FQDN {
	return n
}

// Labels returns the DNS labels that form this name.
// It panics if the name is not valid.
func (n FQDN) Labels() []Label {
	s := strings.TrimSuffix(n.String(), ".")
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ".")
	labels := make([]Label, len(parts))
	for i, p := range parts {
		labels[i] = Label(p)
	}

	return labels
}

// Split splits the first label from the name.
// If the name only has a single label, tail is nil.
// It panics if the name is not valid.
func (n FQDN) Split() (head Label, tail Name) {
	s := n.String()
	i := strings.Index(s, ".")

	head = Label(s[:i])

	if i != len(s)-1 {
		tail = FQDN(s[i+1:])
	}

	return
}

// Join returns a name produced by concatenating this name with s.
// It panics if this name is fully qualified.
func (n FQDN) Join(s Name) Name {
	panic(fmt.Sprintf(
		"can not join '%s' to '%s', left-hand-side is already fully-qualified",
		n,
		s,
	))
}

// IsWithin returns true if n is equal to, or a descendant of, domain.
func (n FQDN) IsWithin(domain FQDN) bool {
	a := strings.ToLower(n.String())
	b := strings.ToLower(domain.String())

	return a == b || strings.HasSuffix(a, "."+b)
}

// Validate returns nil if the name is valid.
func (n FQDN) Validate() error {
	if n == "" {
		return errors.New("fully-qualified name must not be empty")
	}

	if n[0] == '.' {
		return fmt.Errorf("fully-qualified name '%s' is invalid, unexpected leading dot", n)
	}

	if n[len(n)-1] != '.' {
		return fmt.Errorf("fully-qualified name '%s' is invalid, missing trailing dot", n)
	}

	for _, p := range strings.Split(strings.TrimSuffix(string(n), "."), ".") {
		if err := Label(p).Validate(); err != nil {
			return err
		}
	}

	if len(n) > 255 {
		return fmt.Errorf("fully-qualified name '%s' exceeds the 255 octet limit", n)
	}

	return nil
}

// String returns a representation of the name as used by DNS systems.
// It panics if the name is not valid.
func (n FQDN) String() string {
	if err := n.Validate(); err != nil {
		panic(err)
	}

	return string(n)
}

// DNSString returns the wire-form representation used by
// github.com/miekg/dns. It is identical to String() for an FQDN.
func (n FQDN) DNSString() string {
	return n.String()
}
