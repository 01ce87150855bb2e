package dnssd

import (
	"bytes"
	"fmt"
	"net"
	"strconv"
)

// ipToArpa returns the "*.arpa." domain name used to look up ip via a PTR
// record: "<reversed octets>.in-addr.arpa." for IPv4, or "<reversed
// nibbles>.ip6.arpa." for IPv6. ok is false if ip does not parse as an IP
// address.
func ipToArpa(ip net.IP) (name string, ok bool) {
	if v4 := ip.To4(); v4 != nil {
		return fmt.Sprintf(
			"%d.%d.%d.%d.in-addr.arpa.",
			v4[3], v4[2], v4[1], v4[0],
		), true
	}

	v6 := ip.To16()
	if v6 == nil {
		return "", false
	}

	var buf bytes.Buffer
	for idx := 15; idx >= 0; idx-- {
		octet := int64(v6[idx])
		high := octet >> 4
		low := octet & 0xf

		buf.WriteString(strconv.FormatInt(low, 16))
		buf.WriteByte('.')
		buf.WriteString(strconv.FormatInt(high, 16))
		buf.WriteByte('.')
	}
	buf.WriteString("ip6.arpa.")

	return buf.String(), true
}
