// Package topology builds the emulated network: nodes, reciprocal link
// edges, interface addressing and the subnet index.
package topology

import (
	"fmt"
	"net"
	"net/netip"
	"regexp"

	"github.com/pkg/errors"

	"github.com/zinrai/srv6-tinet/internal/addr"
)

var (
	ErrDuplicateNode = errors.New("duplicate node")
	ErrUnknownNode   = errors.New("unknown node")
	ErrInvalidLink   = errors.New("invalid link")
	ErrInvalidAttrs  = errors.New("attributes do not match node kind")
	ErrInvalidName   = errors.New("invalid node name")
)

// Node names become container names, interface prefixes and directories in
// the deployment.
var nodeName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ValidName reports whether id can name a node.
func ValidName(id string) bool {
	return nodeName.MatchString(id)
}

// LinkKind is the role of a link.
type LinkKind string

const (
	LinkCore       LinkKind = "core"
	LinkEdge       LinkKind = "edge"
	LinkManagement LinkKind = "management"
)

// LinkProps are link shaping parameters. They are not interpreted here.
type LinkProps struct {
	Bandwidth float64 `yaml:"bw,omitempty" json:"bw,omitempty"`
	Delay     string  `yaml:"delay,omitempty" json:"delay,omitempty"`
}

// Edge is one direction of a link. Every edge has a reverse edge with
// source and destination swapped.
type Edge struct {
	Src     string
	Dst     string
	SrcIntf string
	DstIntf string
	SrcIP   netip.Prefix
	DstIP   netip.Prefix
	SrcMAC  net.HardwareAddr
	DstMAC  net.HardwareAddr
	Subnet  netip.Prefix
	Kind    LinkKind
	Props   LinkProps
	// Forward is set on the edge built in the direction the link was added.
	Forward bool
}

func (e *Edge) reverse() *Edge {
	return &Edge{
		Src:     e.Dst,
		Dst:     e.Src,
		SrcIntf: e.DstIntf,
		DstIntf: e.SrcIntf,
		SrcIP:   e.DstIP,
		DstIP:   e.SrcIP,
		SrcMAC:  e.DstMAC,
		DstMAC:  e.SrcMAC,
		Subnet:  e.Subnet,
		Kind:    e.Kind,
		Props:   e.Props,
	}
}

// Graph is a directed multigraph of nodes and link edges. It owns its nodes
// and edges and allocates link subnets from the data-plane pool.
type Graph struct {
	nodes    map[string]*Node
	order    []*Node
	edges    []*Edge
	out      map[string][]*Edge
	ports    map[string]int
	intfs    map[string]netip.Prefix
	macs     uint32
	links    *addr.SubnetPool
	linkBits int
	mgmtNet  netip.Prefix
	subnets  *SubnetIndex
}

// NewGraph returns an empty graph. Link subnets are drawn from links and
// addresses on them get a prefix length of linkBits; management links are
// attached to mgmtNet.
func NewGraph(links *addr.SubnetPool, linkBits int, mgmtNet netip.Prefix) *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		out:      make(map[string][]*Edge),
		ports:    make(map[string]int),
		intfs:    make(map[string]netip.Prefix),
		links:    links,
		linkBits: linkBits,
		mgmtNet:  mgmtNet,
		subnets:  NewSubnetIndex(),
	}
}

// AddNode inserts a node. attrs must match kind; nil is accepted for the
// management station.
func (g *Graph) AddNode(id string, kind Kind, mgmt netip.Prefix, attrs Attrs) (*Node, error) {
	if _, ok := g.nodes[id]; ok {
		return nil, errors.Wrapf(ErrDuplicateNode, "node %q", id)
	}
	if !ValidName(id) {
		return nil, errors.Wrapf(ErrInvalidName, "node %q", id)
	}
	switch a := attrs.(type) {
	case RouterAttrs:
		attrs = &a
	case ServerAttrs:
		attrs = &a
	case *RouterAttrs, *ServerAttrs, *ManagementAttrs:
		if isNilAttrs(a) {
			return nil, errors.Wrapf(ErrInvalidAttrs, "node %q: nil %s attributes", id, kind)
		}
	case nil:
		if kind != KindManagement {
			return nil, errors.Wrapf(ErrInvalidAttrs, "node %q: missing %s attributes", id, kind)
		}
		attrs = &ManagementAttrs{}
	}
	if attrs.Kind() != kind {
		return nil, errors.Wrapf(ErrInvalidAttrs, "node %q: %s attributes on a %s", id, attrs.Kind(), kind)
	}
	n := &Node{
		ID:    id,
		Kind:  kind,
		Mgmt:  mgmt,
		Attrs: attrs,
	}
	if r := n.Router(); r != nil && r.Loopback.IsValid() {
		n.Nets = append(n.Nets, Net{Intf: "lo", IP: r.Loopback, Net: r.Loopback})
	}
	g.nodes[id] = n
	g.order = append(g.order, n)
	return n, nil
}

func isNilAttrs(a Attrs) bool {
	switch a := a.(type) {
	case *RouterAttrs:
		return a == nil
	case *ServerAttrs:
		return a == nil
	case *ManagementAttrs:
		return a == nil
	}
	return false
}

// AllocateSubnet draws a data-plane subnet and registers the given nodes as
// its via candidates.
func (g *Graph) AllocateSubnet(via ...string) (netip.Prefix, error) {
	for _, id := range via {
		if _, ok := g.nodes[id]; !ok {
			return netip.Prefix{}, errors.Wrapf(ErrUnknownNode, "node %q", id)
		}
	}
	subnet, err := g.links.Next()
	if err != nil {
		return netip.Prefix{}, err
	}
	g.subnets.Add(subnet, via...)
	return subnet, nil
}

// AddLink connects a and b and returns the a->b edge. Core links join two
// routers, edge links a router (a) to a server (b). Management links join
// any node (a) to the management station (b) over the management network;
// they carry the management addresses and are not indexed as subnets.
func (g *Graph) AddLink(a, b string, kind LinkKind, props LinkProps) (*Edge, error) {
	na, ok := g.nodes[a]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownNode, "node %q", a)
	}
	nb, ok := g.nodes[b]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownNode, "node %q", b)
	}
	if err := checkLink(na, nb, kind); err != nil {
		return nil, err
	}

	e := &Edge{
		Src:     a,
		Dst:     b,
		Kind:    kind,
		Props:   props,
		Forward: true,
	}
	if kind == LinkManagement {
		e.Subnet = g.mgmtNet
		e.SrcIP = na.Mgmt
		e.DstIP = nb.Mgmt
	} else {
		subnet, err := g.links.Next()
		if err != nil {
			return nil, err
		}
		hosts, err := addr.NewHostPool(subnet.String(), subnet, g.linkBits)
		if err != nil {
			return nil, err
		}
		if e.SrcIP, err = hosts.Next(); err != nil {
			return nil, err
		}
		if e.DstIP, err = hosts.Next(); err != nil {
			return nil, err
		}
		e.Subnet = subnet
	}

	e.SrcIntf = g.nextIntf(a)
	e.DstIntf = g.nextIntf(b)
	e.SrcMAC = InterfaceMAC(g.macs)
	e.DstMAC = InterfaceMAC(g.macs + 1)
	g.macs += 2

	r := e.reverse()
	g.edges = append(g.edges, e, r)
	g.out[a] = append(g.out[a], e)
	g.out[b] = append(g.out[b], r)

	if kind != LinkManagement {
		g.intfs[e.SrcIntf] = e.SrcIP
		g.intfs[e.DstIntf] = e.DstIP
		na.Nets = append(na.Nets, Net{Intf: e.SrcIntf, IP: e.SrcIP, Net: e.Subnet})
		nb.Nets = append(nb.Nets, Net{Intf: e.DstIntf, IP: e.DstIP, Net: e.Subnet})
		g.subnets.Add(e.Subnet, a, b)
	}
	return e, nil
}

func checkLink(a, b *Node, kind LinkKind) error {
	if a.ID == b.ID {
		return errors.Wrapf(ErrInvalidLink, "%s link from %q to itself", kind, a.ID)
	}
	ok := false
	switch kind {
	case LinkCore:
		ok = a.Kind == KindRouter && b.Kind == KindRouter
	case LinkEdge:
		ok = a.Kind == KindRouter && b.Kind == KindServer
	case LinkManagement:
		ok = a.Kind != KindManagement && b.Kind == KindManagement
	default:
		return errors.Wrapf(ErrInvalidLink, "unknown link kind %q", kind)
	}
	if !ok {
		return errors.Wrapf(ErrInvalidLink, "%s link between %s %q and %s %q",
			kind, a.Kind, a.ID, b.Kind, b.ID)
	}
	return nil
}

// nextIntf names the next port of a node after the number of links already
// attached to it.
func (g *Graph) nextIntf(id string) string {
	name := fmt.Sprintf("%s-eth%d", id, g.ports[id])
	g.ports[id]++
	return name
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in creation order.
func (g *Graph) Nodes() []*Node {
	return append([]*Node(nil), g.order...)
}

// Edges returns all edges in creation order, each followed by its reverse.
func (g *Graph) Edges() []*Edge {
	return append([]*Edge(nil), g.edges...)
}

// Out returns the edges leaving id in creation order.
func (g *Graph) Out(id string) []*Edge {
	return append([]*Edge(nil), g.out[id]...)
}

// Edge returns the first data-plane edge from one node to another. When
// several links join the same pair, the first one created wins.
func (g *Graph) Edge(from, to string) (*Edge, bool) {
	for _, e := range g.out[from] {
		if e.Dst == to && e.Kind != LinkManagement {
			return e, true
		}
	}
	return nil, false
}

// Neighbors returns the routable neighbors of id in link creation order.
// Management links and the management station are left out.
func (g *Graph) Neighbors(id string) []string {
	var ns []string
	seen := make(map[string]bool)
	for _, e := range g.out[id] {
		if e.Kind == LinkManagement || seen[e.Dst] {
			continue
		}
		if n := g.nodes[e.Dst]; n == nil || !n.Routable() {
			continue
		}
		seen[e.Dst] = true
		ns = append(ns, e.Dst)
	}
	return ns
}

// Attached returns the data-plane subnets id has an interface on.
func (g *Graph) Attached(id string) []netip.Prefix {
	return g.subnets.Attached(id)
}

// InterfaceAddr returns the data-plane address of an interface.
func (g *Graph) InterfaceAddr(intf string) (netip.Prefix, bool) {
	p, ok := g.intfs[intf]
	return p, ok
}

// Subnets returns the subnet index.
func (g *Graph) Subnets() *SubnetIndex {
	return g.subnets
}
