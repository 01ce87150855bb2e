package dnssd

import (
	"fmt"
	"strings"
)

// maxTextValueLen is the per-string limit of a TXT record character-string,
// per RFC 1035 §3.3 (a single length-prefixed byte).
const maxTextValueLen = 255

// Text is a map that represents the key/value pairs in a service instance's
// TXT record.
//
// Keys are matched exactly as given, with no case folding: Get("Path") does
// not find a value set under "path". The specification states that keys SHOULD be no
// longer than 9 characters; since this is not a strict requirement, no such
// limit is enforced here.
//
// See https://tools.ietf.org/html/rfc6763#section-6.1
type Text struct {
	m map[string]string
}

// NewText returns a Text populated from the wire-form strings of a TXT
// record's Txt field.
func NewText(pairs ...string) *Text {
	t := &Text{}
	for _, p := range pairs {
		if i := strings.IndexByte(p, '='); i >= 0 {
			t.Set(p[:i], p[i+1:])
		} else if p != "" {
			t.SetBool(p, true)
		}
	}
	return t
}

// Get returns the value associated with the key k.
func (t *Text) Get(k string) (string, bool) {
	v, ok := t.m[k]
	return v, ok
}

// Set associates the value v with the key k.
func (t *Text) Set(k, v string) {
	if err := ValidateTextKey(k); err != nil {
		panic(err)
	}
	if err := ValidateTextValue(v); err != nil {
		panic(err)
	}

	if t.m == nil {
		t.m = map[string]string{}
	}
	t.m[k] = v
}

// SetBool associates an empty value with k if v is true; otherwise it
// deletes k.
func (t *Text) SetBool(k string, v bool) {
	if v {
		t.Set(k, "")
	} else {
		t.Delete(k)
	}
}

// GetBool returns true if k is present in the map, per RFC 6763 §6.4.
func (t *Text) GetBool(k string) bool {
	_, ok := t.m[k]
	return ok
}

// Has returns true if every key in k is present.
func (t *Text) Has(k ...string) bool {
	for _, x := range k {
		if _, ok := t.m[x]; !ok {
			return false
		}
	}
	return true
}

// Delete removes the given keys from the map.
func (t *Text) Delete(k ...string) {
	for _, x := range k {
		delete(t.m, x)
	}
}

// Pairs returns the string representation of each key/value pair, as they
// appear in the TXT record's Txt field, suitable for dns.TXT.Txt.
func (t *Text) Pairs() []string {
	if len(t.m) == 0 {
		return []string{""}
	}

	pairs := make([]string, 0, len(t.m))
	for k, v := range t.m {
		if v == "" {
			pairs = append(pairs, k)
		} else {
			pairs = append(pairs, k+"="+v)
		}
	}
	return pairs
}

// ValidateTextKey returns an error if k is not a valid TXT record key.
//
// See https://tools.ietf.org/html/rfc6763#section-6.4
func ValidateTextKey(k string) error {
	if k == "" {
		return fmt.Errorf("text key must not be empty")
	}
	for _, r := range k {
		if r == '=' {
			return fmt.Errorf("text key '%s' must not contain '='", k)
		}
	}
	return nil
}

// ValidateTextValue returns an error if v cannot be encoded as a single TXT
// character-string.
//
// See https://tools.ietf.org/html/rfc6763#section-6.5
func ValidateTextValue(v string) error {
	if len(v) > maxTextValueLen {
		return fmt.Errorf("text value exceeds the %d octet character-string limit", maxTextValueLen)
	}
	return nil
}
