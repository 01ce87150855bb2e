package transport

import (
	"fmt"
	"net"

	"github.com/dogmatiq/dodeca/logging"
	ipvx "golang.org/x/net/ipv6"
)

var (
	// IPv6Group is the multicast group used for mDNS over IPv6.
	//
	// See https://tools.ietf.org/html/rfc6762#section-3.
	IPv6Group = net.ParseIP("ff02::fb")

	// IPv6GroupAddress is the address to which mDNS queries are sent when
	// using IPv6.
	IPv6GroupAddress = &net.UDPAddr{IP: IPv6Group, Port: Port}

	// IPv6ListenAddress is the address the mDNS server binds to when using
	// IPv6. The multicast group address itself is not used, so that which
	// interfaces join the group can be controlled precisely via JoinGroup.
	IPv6ListenAddress = &net.UDPAddr{IP: net.IPv6unspecified, Port: Port}
)

// IPv6Transport is an IPv6 UDP multicast Transport.
type IPv6Transport struct {
	Logger logging.Logger

	pc *ipvx.PacketConn
}

// Listen starts listening for UDP packets on iface.
func (t *IPv6Transport) Listen(iface *net.Interface) error {
	conn, err := net.ListenUDP("udp6", IPv6ListenAddress)
	if err != nil {
		logListenError(t.Logger, IPv6ListenAddress, err)
		return err
	}

	t.pc = ipvx.NewPacketConn(conn)

	if err := t.pc.SetControlMessage(ipvx.FlagInterface, true); err != nil {
		t.pc.Close()
		logListenError(t.Logger, IPv6ListenAddress, err)
		return err
	}

	if err := t.pc.JoinGroup(iface, &net.UDPAddr{IP: IPv6Group}); err != nil {
		t.pc.Close()
		logListenError(t.Logger, IPv6ListenAddress, err)
		return err
	}

	logListening(t.Logger, IPv6ListenAddress, iface)
	return nil
}

// Read reads the next packet from the transport.
func (t *IPv6Transport) Read() (*InboundPacket, error) {
	buf := getBuffer()

	n, cm, src, err := t.pc.ReadFrom(buf)
	if err != nil {
		putBuffer(buf)
		logReadError(t.Logger, t.Group(), err)
		return nil, err
	}

	if cm == nil {
		putBuffer(buf)
		err := fmt.Errorf("empty control message from %s", src)
		logReadError(t.Logger, t.Group(), err)
		return nil, err
	}

	return &InboundPacket{
		Transport: t,
		Source: Endpoint{
			InterfaceIndex: cm.IfIndex,
			Address:        src.(*net.UDPAddr),
		},
		Data: buf[:n],
	}, nil
}

// Write sends a packet via the transport.
func (t *IPv6Transport) Write(p *OutboundPacket) error {
	if _, err := t.pc.WriteTo(
		p.Data,
		&ipvx.ControlMessage{IfIndex: p.Destination.InterfaceIndex},
		p.Destination.Address,
	); err != nil {
		logWriteError(t.Logger, p.Destination.Address, t.Group(), err)
		return err
	}

	return nil
}

// Group returns the IPv6 mDNS multicast group address.
func (t *IPv6Transport) Group() *net.UDPAddr {
	return IPv6GroupAddress
}

// Close closes the transport.
func (t *IPv6Transport) Close() error {
	return t.pc.Close()
}
