package topology

import "net/netip"

// Kind is the role of a node.
type Kind string

const (
	KindRouter     Kind = "router"
	KindServer     Kind = "server"
	KindManagement Kind = "management"
)

// Group tags exported with each node.
const (
	RouterGroup = 200
	ServerGroup = 100
)

// Attrs carries the fields that only exist for one kind of node.
type Attrs interface {
	Kind() Kind
}

// RouterAttrs are the router-only fields.
type RouterAttrs struct {
	Loopback netip.Prefix
	RouterID netip.Addr
}

func (RouterAttrs) Kind() Kind { return KindRouter }

// ServerAttrs are the server-only fields.
type ServerAttrs struct {
	Group int
	// VNFs are the virtual function addresses hosted by the server.
	VNFs []netip.Prefix
	// DefaultVia and DefaultDev describe the default route of the server:
	// the router address and local interface of its first edge link.
	DefaultVia netip.Addr
	DefaultDev string
}

func (ServerAttrs) Kind() Kind { return KindServer }

// ManagementAttrs are the fields of the management station.
type ManagementAttrs struct{}

func (ManagementAttrs) Kind() Kind { return KindManagement }

// Net is an address configured on one of the interfaces of a node.
type Net struct {
	Intf string
	IP   netip.Prefix
	Net  netip.Prefix
}

// Node is a router, a server or the management station.
type Node struct {
	ID    string
	Kind  Kind
	Mgmt  netip.Prefix
	Attrs Attrs
	// Nets lists the data-plane addresses of the node in creation order.
	Nets []Net
}

// Router returns the router attributes, or nil for other kinds.
func (n *Node) Router() *RouterAttrs {
	a, _ := n.Attrs.(*RouterAttrs)
	return a
}

// Server returns the server attributes, or nil for other kinds.
func (n *Node) Server() *ServerAttrs {
	a, _ := n.Attrs.(*ServerAttrs)
	return a
}

// Group returns the exported group tag of the node.
func (n *Node) Group() int {
	switch n.Kind {
	case KindRouter:
		return RouterGroup
	case KindServer:
		if s := n.Server(); s != nil && s.Group != 0 {
			return s.Group
		}
		return ServerGroup
	}
	return 0
}

// Routable reports whether the node takes part in data-plane path search.
func (n *Node) Routable() bool {
	return n.Kind == KindRouter || n.Kind == KindServer
}
