package gossipmesh

import "net"

// detectEripa finds this node's externally routable address by dialing a
// UDP "connection" to a public address; no packet is actually sent, the
// kernel just picks the local address that would be used for that route.
// This is the standard Go idiom for self-address discovery. If that fails
// (no route, sandboxed network namespace) it falls back to the first
// non-loopback interface address it can find.
func detectEripa() (string, error) {
	if addr, err := detectEripaViaRoute(); err == nil {
		return addr, nil
	}
	return detectEripaViaInterfaces()
}

func detectEripaViaRoute() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", ErrUnsupportedProtocol
	}
	return local.IP.String(), nil
}

func detectEripaViaInterfaces() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ipNet.IP.To4() != nil {
			return ipNet.IP.String(), nil
		}
	}
	return "", net.UnknownNetworkError("no non-loopback address found")
}
