package mdns

import (
	"errors"
	"net"
)

// internetInterface returns the network interface used to reach the
// internet, on the assumption that whatever interface routes to a public DNS
// server is the one the caller wants mDNS on.
func internetInterface() (net.Interface, error) {
	candidates, err := net.Interfaces()
	if err != nil {
		return net.Interface{}, err
	}

	con, err := net.Dial("udp4", "8.8.8.8:53")
	if err != nil {
		return net.Interface{}, err
	}
	defer con.Close()

	ip := con.LocalAddr().(*net.UDPAddr).IP

	for _, i := range candidates {
		addrs, err := i.Addrs()
		if err != nil {
			continue
		}

		for _, a := range addrs {
			if ipn, ok := a.(*net.IPNet); ok && ipn.IP.Equal(ip) {
				return i, nil
			}
		}
	}

	return net.Interface{}, errors.New("could not find internet network interface")
}

func interfaceAddrStrings(iface *net.Interface) (map[string]bool, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, err
	}

	out := map[string]bool{}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok {
			out[ipn.IP.String()] = true
		}
	}
	return out, nil
}
