package actor

import "net"

// localIP returns the first non-loopback IPv4 address bound to this
// host, used to populate NetInfo.IP when a container starts without an
// explicit bind address. Standard library only (net.InterfaceAddrs): no
// third-party local-IP resolution library is warranted for a handful of
// lines that never touch the wire.
func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return "127.0.0.1"
}
