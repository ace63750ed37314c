package actor

import (
	"os"
	"strconv"
	"strings"
)

func processPID() int { return os.Getpid() }

// addrPort extracts the numeric port from a "host:port" listener
// address, as returned by net.Listener.Addr().String().
func addrPort(addr string) int {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return 0
	}
	p, err := strconv.Atoi(addr[idx+1:])
	if err != nil {
		return 0
	}
	return p
}
