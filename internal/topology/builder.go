package topology

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zinrai/srv6-tinet/internal/addr"
)

// MgmtStation is the name of the management station node.
const MgmtStation = "mgt"

// Builder turns an abstract topology into an addressed graph.
type Builder struct {
	pools *addr.Pools
	log   *zap.Logger
	graph *Graph
}

// NewBuilder creates a topology builder drawing addresses from pools.
func NewBuilder(pools *addr.Pools, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{
		pools: pools,
		log:   log,
	}
}

// Build creates every node and link of in. The passes always run in the same
// order so that the same input yields the same addresses. On error the
// partially built graph is dropped.
func (b *Builder) Build(in *Input) (*Graph, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	b.graph = NewGraph(b.pools.DataPlane, b.pools.LinkBits, b.pools.Mgmt.Prefix())

	if err := b.buildRouters(in); err != nil {
		return nil, err
	}
	if err := b.buildServers(in); err != nil {
		return nil, err
	}
	if err := b.buildMgmtStation(); err != nil {
		return nil, err
	}
	if err := b.buildMgmtLinks(in); err != nil {
		return nil, err
	}
	if err := b.buildEdgeLinks(in); err != nil {
		return nil, err
	}
	if err := b.buildCoreLinks(in); err != nil {
		return nil, err
	}

	b.log.Info("Topology built",
		zap.Int("nodes", len(b.graph.Nodes())),
		zap.Int("edges", len(b.graph.Edges())),
		zap.Int("subnets", b.graph.Subnets().Len()))
	return b.graph, nil
}

func (b *Builder) buildRouters(in *Input) error {
	for _, name := range in.Routers {
		mgmt, err := b.pools.Mgmt.Next()
		if err != nil {
			return errors.Wrapf(err, "router %s", name)
		}
		loopback, err := b.pools.Loopback.Next()
		if err != nil {
			return errors.Wrapf(err, "router %s", name)
		}
		routerID, err := b.pools.RouterID.Next()
		if err != nil {
			return errors.Wrapf(err, "router %s", name)
		}

		attrs := &RouterAttrs{Loopback: loopback, RouterID: routerID.Addr()}
		if _, err := b.graph.AddNode(name, KindRouter, mgmt, attrs); err != nil {
			return err
		}
		b.log.Debug("Added router",
			zap.String("node", name),
			zap.Stringer("mgmt", mgmt),
			zap.Stringer("loopback", loopback),
			zap.Stringer("router_id", routerID.Addr()))
	}
	return nil
}

func (b *Builder) buildServers(in *Input) error {
	for _, s := range in.Servers {
		mgmt, err := b.pools.Mgmt.Next()
		if err != nil {
			return errors.Wrapf(err, "server %s", s.Name)
		}
		attrs := &ServerAttrs{}
		if _, err := b.graph.AddNode(s.Name, KindServer, mgmt, attrs); err != nil {
			return err
		}

		// Servers hosting virtual functions own a subnet of their own
		if s.VNFs > 0 {
			subnet, err := b.graph.AllocateSubnet(s.Name)
			if err != nil {
				return errors.Wrapf(err, "server %s", s.Name)
			}
			hosts, err := addr.NewHostPool(s.Name+"-vnfs", subnet, b.pools.VNFBits)
			if err != nil {
				return err
			}
			for i := 0; i < s.VNFs; i++ {
				vnf, err := hosts.Next()
				if err != nil {
					return errors.Wrapf(err, "server %s vnf %d", s.Name, i)
				}
				attrs.VNFs = append(attrs.VNFs, vnf)
			}
			attrs.Group = s.VNFs
		}
		b.log.Debug("Added server",
			zap.String("node", s.Name),
			zap.Stringer("mgmt", mgmt),
			zap.Int("vnfs", len(attrs.VNFs)))
	}
	return nil
}

func (b *Builder) buildMgmtStation() error {
	mgmt, err := b.pools.Mgmt.Next()
	if err != nil {
		return errors.Wrapf(err, "node %s", MgmtStation)
	}
	if _, err := b.graph.AddNode(MgmtStation, KindManagement, mgmt, nil); err != nil {
		return err
	}
	b.log.Debug("Added management station", zap.Stringer("mgmt", mgmt))
	return nil
}

// buildMgmtLinks runs before any data-plane link so that the management
// interface is eth0 on every node.
func (b *Builder) buildMgmtLinks(in *Input) error {
	for _, name := range in.Routers {
		if _, err := b.graph.AddLink(name, MgmtStation, LinkManagement, LinkProps{}); err != nil {
			return err
		}
	}
	for _, s := range in.Servers {
		if _, err := b.graph.AddLink(s.Name, MgmtStation, LinkManagement, LinkProps{}); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) buildEdgeLinks(in *Input) error {
	for _, l := range in.EdgeLinks {
		e, err := b.graph.AddLink(l.A, l.B, LinkEdge, l.LinkProps)
		if err != nil {
			return errors.Wrapf(err, "edge link %s-%s", l.A, l.B)
		}

		// The router side of the first edge link is the server's default via
		server, _ := b.graph.Node(l.B)
		if s := server.Server(); s != nil && !s.DefaultVia.IsValid() {
			s.DefaultVia = e.SrcIP.Addr()
			s.DefaultDev = e.DstIntf
		}
		b.log.Debug("Added edge link",
			zap.String("lhs", e.SrcIntf), zap.Stringer("lhs_ip", e.SrcIP),
			zap.String("rhs", e.DstIntf), zap.Stringer("rhs_ip", e.DstIP))
	}
	return nil
}

func (b *Builder) buildCoreLinks(in *Input) error {
	for _, l := range in.CoreLinks {
		e, err := b.graph.AddLink(l.A, l.B, LinkCore, l.LinkProps)
		if err != nil {
			return errors.Wrapf(err, "core link %s-%s", l.A, l.B)
		}
		b.log.Debug("Added core link",
			zap.String("lhs", e.SrcIntf), zap.Stringer("lhs_ip", e.SrcIP),
			zap.String("rhs", e.DstIntf), zap.Stringer("rhs_ip", e.DstIP))
	}
	return nil
}
