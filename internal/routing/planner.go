// Package routing computes the static routes installed on every router at
// provisioning time.
package routing

import (
	"fmt"
	"net/netip"
	"slices"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zinrai/srv6-tinet/internal/topology"
)

// ErrUnreachableDestination is matched by every UnreachableError.
var ErrUnreachableDestination = errors.New("unreachable destination")

// Graph is the view of the topology the planner needs.
type Graph interface {
	Nodes() []*topology.Node
	Neighbors(id string) []string
	Edge(from, to string) (*topology.Edge, bool)
	Subnets() *topology.SubnetIndex
}

// Route sends traffic for Subnet to Gateway out of Device.
type Route struct {
	Subnet  netip.Prefix
	Gateway netip.Addr
	Device  string
}

// Table holds the routes of every router, in subnet allocation order.
type Table map[string][]Route

// Routers returns the routers of the table in lexical order.
func (t Table) Routers() []string {
	ids := make([]string, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UnreachableError reports a router with no path to any node of a subnet.
type UnreachableError struct {
	Router string
	Subnet netip.Prefix
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("router %s: no path to %s", e.Router, e.Subnet)
}

func (e *UnreachableError) Unwrap() error {
	return ErrUnreachableDestination
}

// Result is the outcome of a planning run. Unreachable pairs get no route.
type Result struct {
	Routes      Table
	Unreachable []*UnreachableError
}

// Planner computes shortest hop-count routes.
type Planner struct {
	log *zap.Logger
}

// NewPlanner creates a planner.
func NewPlanner(log *zap.Logger) *Planner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Planner{log: log}
}

// Plan computes one route per router and subnet the router is not attached
// to. Among the nodes on a subnet, the one with the fewest hops is chosen;
// on a tie the one attached first wins. The route points at the first hop
// of the path toward it.
func (p *Planner) Plan(g Graph) *Result {
	res := &Result{Routes: make(Table)}
	index := g.Subnets()
	subnets := index.Subnets()

	for _, n := range g.Nodes() {
		if n.Kind != topology.KindRouter {
			continue
		}
		tree := shortestPaths(g, n.ID)

		for _, subnet := range subnets {
			via := index.Via(subnet)
			if slices.Contains(via, n.ID) {
				continue
			}
			route, ok := tree.route(g, subnet, via)
			if !ok {
				u := &UnreachableError{Router: n.ID, Subnet: subnet}
				res.Unreachable = append(res.Unreachable, u)
				p.log.Warn("No route", zap.String("router", n.ID), zap.Stringer("subnet", subnet))
				continue
			}
			res.Routes[n.ID] = append(res.Routes[n.ID], route)
			p.log.Debug("Route computed",
				zap.String("router", n.ID),
				zap.Stringer("subnet", subnet),
				zap.Stringer("gateway", route.Gateway),
				zap.String("device", route.Device))
		}
	}
	return res
}

// tree is the breadth-first search tree rooted at one router.
type tree struct {
	root string
	hops map[string]int
	// first maps a node to the neighbor of root the path to it starts with.
	first map[string]string
}

// shortestPaths walks the routable graph from root. Neighbors are visited
// in link creation order, so the first path found to a node is kept.
func shortestPaths(g Graph, root string) *tree {
	t := &tree{
		root:  root,
		hops:  map[string]int{root: 0},
		first: make(map[string]string),
	}
	queue := []string{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.Neighbors(cur) {
			if _, seen := t.hops[next]; seen {
				continue
			}
			t.hops[next] = t.hops[cur] + 1
			if cur == root {
				t.first[next] = next
			} else {
				t.first[next] = t.first[cur]
			}
			queue = append(queue, next)
		}
	}
	return t
}

func (t *tree) route(g Graph, subnet netip.Prefix, via []string) (Route, bool) {
	best, bestHops := "", 0
	for _, v := range via {
		h, ok := t.hops[v]
		if !ok || h == 0 {
			continue
		}
		if best == "" || h < bestHops {
			best, bestHops = v, h
		}
	}
	if best == "" {
		return Route{}, false
	}
	e, ok := g.Edge(t.root, t.first[best])
	if !ok {
		return Route{}, false
	}
	return Route{
		Subnet:  subnet,
		Gateway: e.DstIP.Addr(),
		Device:  e.SrcIntf,
	}, true
}
