package export

import (
	"fmt"
	"net/netip"
	"path"

	"github.com/zinrai/srv6-tinet/internal/routing"
	"github.com/zinrai/srv6-tinet/internal/topology"
)

const (
	daemonConfDir = "/etc/frr"
	daemonBinDir  = "/usr/lib/frr"
)

// ip returns the ip command for the family of a.
func ip(a netip.Addr) string {
	if a.Is4() {
		return "ip"
	}
	return "ip -6"
}

// HostCommands returns the commands configuring node n inside its
// container: interface MACs, the management address on the first
// interface, loopback addresses, kernel switches, data-plane addresses,
// the server default route, static routes and finally the daemons.
func HostCommands(g *topology.Graph, n *topology.Node, routes []routing.Route, daemons []string) []Command {
	var cmds []Command
	add := func(format string, args ...any) {
		cmds = append(cmds, Command{Cmd: fmt.Sprintf(format, args...)})
	}

	out := g.Out(n.ID)
	for _, e := range out {
		add("ip link set dev %s address %s", e.SrcIntf, e.SrcMAC)
	}
	if n.Mgmt.IsValid() && len(out) > 0 && out[0].Kind == topology.LinkManagement {
		add("%s addr add %s dev %s", ip(n.Mgmt.Addr()), n.Mgmt, out[0].SrcIntf)
	}

	if r := n.Router(); r != nil {
		if r.RouterID.IsValid() {
			add("%s addr add %s dev lo", ip(r.RouterID), netip.PrefixFrom(r.RouterID, r.RouterID.BitLen()))
		}
	}
	if s := n.Server(); s != nil {
		for _, v := range s.VNFs {
			add("%s addr add %s dev lo", ip(v.Addr()), v)
		}
	}

	if n.Routable() {
		add("sysctl -w net.ipv6.conf.all.forwarding=1")
		add("sysctl -w net.ipv6.conf.all.seg6_enabled=1")
		add("sysctl -w net.ipv6.conf.default.seg6_enabled=1")
		if n.Kind == topology.KindRouter {
			add("sysctl -w net.ipv6.conf.all.accept_ra=0")
		}
		for _, e := range out {
			if e.Kind != topology.LinkManagement {
				add("sysctl -w net.ipv6.conf.%s.seg6_enabled=1", e.SrcIntf)
			}
		}
	}

	// Nets starts with the loopback on routers
	for _, net := range n.Nets {
		add("%s addr add %s dev %s", ip(net.IP.Addr()), net.IP, net.Intf)
	}

	if s := n.Server(); s != nil && s.DefaultVia.IsValid() {
		add("%s route add default via %s dev %s", ip(s.DefaultVia), s.DefaultVia, s.DefaultDev)
	}
	for _, r := range routes {
		add("%s route add %s via %s dev %s", ip(r.Gateway), r.Subnet, r.Gateway, r.Device)
	}

	for _, d := range daemons {
		conf := path.Join(daemonConfDir, d+".conf")
		add("cp %s %s", path.Join(ConfigMount, DaemonConfigPath(n.ID, d)), conf)
	}
	if len(daemons) > 0 {
		add("mkdir -p /var/run/frr")
		add("chown -R frr:frr /var/run/frr %s", daemonConfDir)
	}
	for _, d := range daemons {
		add("%s -d -f %s", path.Join(daemonBinDir, d), path.Join(daemonConfDir, d+".conf"))
	}
	return cmds
}

// DaemonConfigPath is the path of a daemon config relative to the
// deployment directory.
func DaemonConfigPath(router, daemon string) string {
	return path.Join(router, daemon+".conf")
}
