package mdns

import (
	"net"

	"github.com/dogmatiq/dodeca/logging"
)

// Option configures a Server constructed by New.
type Option func(*Server) error

// UseLogger sets the logger used by the server.
func UseLogger(l logging.Logger) Option {
	return func(s *Server) error {
		s.logger = l
		return nil
	}
}

// UseInterface sets the network interface the server listens/sends on. If
// not provided, the server chooses the interface used to reach the
// internet.
func UseInterface(iface net.Interface) Option {
	return func(s *Server) error {
		s.iface = &iface
		return nil
	}
}

// DisableIPv4 prevents the server from listening for or sending IPv4
// messages.
func DisableIPv4(s *Server) error {
	s.disableIPv4 = true
	return nil
}

// DisableIPv6 prevents the server from listening for or sending IPv6
// messages.
func DisableIPv6(s *Server) error {
	s.disableIPv6 = true
	return nil
}
