// Package transport implements the UDP multicast send/receive layer the mDNS
// core depends on: one Transport per (interface, address family), joining
// the mDNS multicast group and exchanging raw DNS packets over it.
package transport

import (
	"net"

	"github.com/miekg/dns"
)

// Port is the mDNS port number, per RFC 6762 §3.
const Port = 5353

// Transport sends and receives UDP packets for one address family on one
// network interface.
type Transport interface {
	// Listen starts listening for UDP packets on the given interface.
	Listen(iface *net.Interface) error

	// Read reads the next packet from the transport. It blocks until a
	// packet arrives or the transport is closed.
	Read() (*InboundPacket, error)

	// Write sends a packet via the transport.
	Write(*OutboundPacket) error

	// Group returns the multicast group address for this transport.
	Group() *net.UDPAddr

	// Close closes the transport, unblocking any pending Read.
	Close() error
}

// SendResponse sends m as a response to the inbound packet in, addressed to
// dest. It returns false without sending anything if m has no content.
func SendResponse(in *InboundPacket, dest *net.UDPAddr, m *dns.Msg) (bool, error) {
	if len(m.Question) == 0 &&
		len(m.Answer) == 0 &&
		len(m.Ns) == 0 &&
		len(m.Extra) == 0 {
		return false, nil
	}

	out, err := NewOutboundPacket(
		Endpoint{
			InterfaceIndex: in.Source.InterfaceIndex,
			Address:        dest,
		},
		m,
	)
	if err != nil {
		return false, err
	}
	defer out.Close()

	return true, in.Transport.Write(out)
}

// SendUnicastResponse sends m as a unicast response to the inbound packet's
// source.
func SendUnicastResponse(in *InboundPacket, m *dns.Msg) (bool, error) {
	return SendResponse(in, in.Source.Address, m)
}

// SendMulticastResponse sends m as a multicast response on the transport that
// received the inbound packet.
func SendMulticastResponse(in *InboundPacket, m *dns.Msg) (bool, error) {
	return SendResponse(in, in.Transport.Group(), m)
}
