package topology

import (
	"net"
)

// macOUI is the second octet of every generated address, so that emulated
// interfaces are easy to tell apart in captures.
const macOUI = 0x36

// InterfaceMAC returns the locally administered unicast MAC of the n-th
// interface created in a graph.
// Format: 02:36:XX:XX:XX:XX (U/L bit set, I/G bit clear)
func InterfaceMAC(n uint32) net.HardwareAddr {
	return net.HardwareAddr{
		0x02,
		macOUI,
		byte(n >> 24),
		byte(n >> 16),
		byte(n >> 8),
		byte(n),
	}
}
