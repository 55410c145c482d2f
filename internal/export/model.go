// Package export turns a built topology and its routes into deployment
// artifacts: JSON records, a tinet spec, per-router daemon configs and a DOT
// rendering.
package export

import (
	"sort"

	"github.com/zinrai/srv6-tinet/internal/routing"
	"github.com/zinrai/srv6-tinet/internal/topology"
)

// NodeRecord is one node of the topology file.
type NodeRecord struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	MgmtIP     string `json:"mgmtip"`
	Group      int    `json:"group"`
	LoopbackIP string `json:"loopbackip,omitempty"`
	RouterID   string `json:"routerid,omitempty"`
}

// LinkRecord is one direction of a data-plane link. Every link appears twice,
// the reverse record swapping lhs and rhs. The lhs is the source side.
type LinkRecord struct {
	Source  string  `json:"source"`
	Target  string  `json:"target"`
	LhsIntf string  `json:"lhs_intf"`
	RhsIntf string  `json:"rhs_intf"`
	LhsIP   string  `json:"lhs_ip"`
	RhsIP   string  `json:"rhs_ip"`
	Subnet  string  `json:"subnet"`
	Kind    string  `json:"kind"`
	Bw      float64 `json:"bw,omitempty"`
	Delay   string  `json:"delay,omitempty"`
}

// TopologyFile is the node-link document consumed by the persistence side.
type TopologyFile struct {
	Directed   bool         `json:"directed"`
	Multigraph bool         `json:"multigraph"`
	Graph      struct{}     `json:"graph"`
	Nodes      []NodeRecord `json:"nodes"`
	Links      []LinkRecord `json:"links"`
}

// RouteRecord is one kernel route.
type RouteRecord struct {
	Subnet  string `json:"subnet"`
	Gateway string `json:"gateway"`
	Device  string `json:"device"`
}

// Model is the flattened, serializable form of a topology and its routes.
type Model struct {
	Topology TopologyFile
	// Routing maps every router with at least one route to its routes in
	// subnet allocation order.
	Routing map[string][]RouteRecord
	// VNFs maps servers hosting virtual functions to their addresses.
	VNFs map[string][]string
	// Mgmt lists management addresses in node creation order.
	Mgmt []string
}

// Flatten builds the model. Nodes are sorted by id and links by source,
// target and lhs interface; the management station and management links
// are left out of the topology file.
func Flatten(g *topology.Graph, routes routing.Table) *Model {
	m := &Model{
		Topology: TopologyFile{
			Directed:   true,
			Multigraph: true,
			Nodes:      []NodeRecord{},
			Links:      []LinkRecord{},
		},
		Routing: make(map[string][]RouteRecord),
		VNFs:    make(map[string][]string),
	}

	for _, n := range g.Nodes() {
		if n.Mgmt.IsValid() {
			m.Mgmt = append(m.Mgmt, n.Mgmt.Addr().String())
		}
		if !n.Routable() {
			continue
		}
		rec := NodeRecord{
			ID:    n.ID,
			Type:  string(n.Kind),
			Group: n.Group(),
		}
		if n.Mgmt.IsValid() {
			rec.MgmtIP = n.Mgmt.String()
		}
		if r := n.Router(); r != nil {
			if r.Loopback.IsValid() {
				rec.LoopbackIP = r.Loopback.Addr().String()
			}
			if r.RouterID.IsValid() {
				rec.RouterID = r.RouterID.String()
			}
		}
		if s := n.Server(); s != nil && len(s.VNFs) > 0 {
			vnfs := make([]string, 0, len(s.VNFs))
			for _, v := range s.VNFs {
				vnfs = append(vnfs, v.String())
			}
			m.VNFs[n.ID] = vnfs
		}
		m.Topology.Nodes = append(m.Topology.Nodes, rec)
	}
	sort.Slice(m.Topology.Nodes, func(i, j int) bool {
		return m.Topology.Nodes[i].ID < m.Topology.Nodes[j].ID
	})

	for _, e := range g.Edges() {
		if e.Kind == topology.LinkManagement {
			continue
		}
		m.Topology.Links = append(m.Topology.Links, LinkRecord{
			Source:  e.Src,
			Target:  e.Dst,
			LhsIntf: e.SrcIntf,
			RhsIntf: e.DstIntf,
			LhsIP:   e.SrcIP.Addr().String(),
			RhsIP:   e.DstIP.Addr().String(),
			Subnet:  e.Subnet.String(),
			Kind:    string(e.Kind),
			Bw:      e.Props.Bandwidth,
			Delay:   e.Props.Delay,
		})
	}
	sort.Slice(m.Topology.Links, func(i, j int) bool {
		a, b := m.Topology.Links[i], m.Topology.Links[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.LhsIntf < b.LhsIntf
	})

	for _, id := range routes.Routers() {
		rs := routes[id]
		if len(rs) == 0 {
			continue
		}
		recs := make([]RouteRecord, 0, len(rs))
		for _, r := range rs {
			recs = append(recs, RouteRecord{
				Subnet:  r.Subnet.String(),
				Gateway: r.Gateway.String(),
				Device:  r.Device,
			})
		}
		m.Routing[id] = recs
	}
	return m
}
