// Package altname generates the next candidate name to retry registration
// with after a probe collision (RFC 6762 §9), following the conventions
// described in the Design Notes: service names grow a "#<n>" suffix, host
// names grow a "-<n>" suffix.
package altname

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	serviceSuffix = regexp.MustCompile(`^(.*) #(\d+)$`)
	hostSuffix    = regexp.MustCompile(`^(.*)-(\d+)$`)
)

// NextService returns the next candidate service instance name derived from
// n. If n ends in " #<n>" for a positive integer n, the counter is
// incremented; otherwise " #2" is appended. Total and terminates after one
// step.
func NextService(n string) string {
	if m := serviceSuffix.FindStringSubmatch(n); m != nil {
		if v, err := strconv.Atoi(m[2]); err == nil {
			return fmt.Sprintf("%s #%d", m[1], v+1)
		}
	}

	return n + " #2"
}

// NextHost returns the next candidate host name derived from n. If n ends in
// "-<n>" for a positive integer n, the counter is incremented; otherwise "-2"
// is appended. Total and terminates after one step.
func NextHost(n string) string {
	if m := hostSuffix.FindStringSubmatch(n); m != nil {
		if v, err := strconv.Atoi(m[2]); err == nil {
			return fmt.Sprintf("%s-%d", m[1], v+1)
		}
	}

	return n + "-2"
}
