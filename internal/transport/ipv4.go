package transport

import (
	"net"

	"github.com/dogmatiq/dodeca/logging"
	ipvx "golang.org/x/net/ipv4"
)

var (
	// IPv4Group is the multicast group used for mDNS over IPv4.
	//
	// See https://tools.ietf.org/html/rfc6762#section-3.
	IPv4Group = net.ParseIP("224.0.0.251")

	// IPv4GroupAddress is the address to which mDNS queries are sent when
	// using IPv4.
	IPv4GroupAddress = &net.UDPAddr{IP: IPv4Group, Port: Port}

	// IPv4ListenAddress is the address the mDNS server binds to when using
	// IPv4. The multicast group address itself is not used, so that which
	// interfaces join the group can be controlled precisely via JoinGroup.
	IPv4ListenAddress = &net.UDPAddr{IP: net.IPv4zero, Port: Port}
)

// IPv4Transport is an IPv4 UDP multicast Transport.
type IPv4Transport struct {
	Logger logging.Logger

	pc *ipvx.PacketConn
}

// Listen starts listening for UDP packets on iface.
func (t *IPv4Transport) Listen(iface *net.Interface) error {
	conn, err := net.ListenUDP("udp4", IPv4ListenAddress)
	if err != nil {
		logListenError(t.Logger, IPv4ListenAddress, err)
		return err
	}

	t.pc = ipvx.NewPacketConn(conn)

	if err := t.pc.SetControlMessage(ipvx.FlagInterface, true); err != nil {
		t.pc.Close()
		logListenError(t.Logger, IPv4ListenAddress, err)
		return err
	}

	if err := t.pc.JoinGroup(iface, &net.UDPAddr{IP: IPv4Group}); err != nil {
		t.pc.Close()
		logListenError(t.Logger, IPv4ListenAddress, err)
		return err
	}

	logListening(t.Logger, IPv4ListenAddress, iface)
	return nil
}

// Read reads the next packet from the transport.
func (t *IPv4Transport) Read() (*InboundPacket, error) {
	buf := getBuffer()

	n, cm, src, err := t.pc.ReadFrom(buf)
	if err != nil {
		putBuffer(buf)
		logReadError(t.Logger, t.Group(), err)
		return nil, err
	}

	ifIndex := 0
	if cm != nil {
		ifIndex = cm.IfIndex
	}

	return &InboundPacket{
		Transport: t,
		Source: Endpoint{
			InterfaceIndex: ifIndex,
			Address:        src.(*net.UDPAddr),
		},
		Data: buf[:n],
	}, nil
}

// Write sends a packet via the transport.
func (t *IPv4Transport) Write(p *OutboundPacket) error {
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

// Group returns the IPv4 mDNS multicast group address.
func (t *IPv4Transport) Group() *net.UDPAddr {
	return IPv4GroupAddress
}

// Close closes the transport.
func (t *IPv4Transport) Close() error {
	return t.pc.Close()
}
