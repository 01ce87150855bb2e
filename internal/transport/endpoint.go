package transport

import "net"

// Endpoint is the origin or destination of a packet.
type Endpoint struct {
	InterfaceIndex int
	Address        *net.UDPAddr
}

// IsLegacy returns true if this endpoint is a "legacy" querier: one that
// does not implement the full mDNS specification and expects a "standard"
// unicast response (RFC 6762 §6.7). A legacy querier is identified by its
// source port not being the mDNS port.
func (ep Endpoint) IsLegacy() bool {
	return ep.Address.Port != Port
}
