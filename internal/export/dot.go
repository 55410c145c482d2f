package export

import (
	"strconv"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/multi"

	"github.com/zinrai/srv6-tinet/internal/topology"
)

type dotNode struct {
	id   int64
	node *topology.Node
}

func (n dotNode) ID() int64 { return n.id }
func (n dotNode) DOTID() string { return n.node.ID }

func (n dotNode) Attributes() []encoding.Attribute {
	attrs := []encoding.Attribute{
		{Key: "kind", Value: string(n.node.Kind)},
		{Key: "group", Value: strconv.Itoa(n.node.Group())},
	}
	if r := n.node.Router(); r != nil && r.Loopback.IsValid() {
		attrs = append(attrs, encoding.Attribute{Key: "loopback", Value: r.Loopback.Addr().String()})
	}
	return attrs
}

type dotLine struct {
	id       int64
	from, to dotNode
	edge     *topology.Edge
}

func (l dotLine) ID() int64 { return l.id }
func (l dotLine) From() graph.Node { return l.from }
func (l dotLine) To() graph.Node { return l.to }
func (l dotLine) ReversedLine() graph.Line {
	return dotLine{id: l.id, from: l.to, to: l.from, edge: l.edge}
}

func (l dotLine) Attributes() []encoding.Attribute {
	attrs := []encoding.Attribute{
		{Key: "label", Value: l.edge.Subnet.String()},
		{Key: "taillabel", Value: l.edge.SrcIntf},
		{Key: "headlabel", Value: l.edge.DstIntf},
		{Key: "kind", Value: string(l.edge.Kind)},
	}
	if l.edge.Props.Bandwidth != 0 {
		attrs = append(attrs, encoding.Attribute{
			Key:   "bw",
			Value: strconv.FormatFloat(l.edge.Props.Bandwidth, 'g', -1, 64),
		})
	}
	if l.edge.Props.Delay != "" {
		attrs = append(attrs, encoding.Attribute{Key: "delay", Value: l.edge.Props.Delay})
	}
	return attrs
}

// DOT renders the data-plane graph: routers, servers and one line per
// physical link from its lhs to its rhs.
func DOT(g *topology.Graph) ([]byte, error) {
	mg := multi.NewDirectedGraph()
	ids := make(map[string]dotNode)
	for _, n := range g.Nodes() {
		if !n.Routable() {
			continue
		}
		dn := dotNode{id: int64(len(ids)), node: n}
		ids[n.ID] = dn
		mg.AddNode(dn)
	}

	var lid int64
	for _, e := range g.Edges() {
		if !e.Forward || e.Kind == topology.LinkManagement {
			continue
		}
		mg.SetLine(dotLine{id: lid, from: ids[e.Src], to: ids[e.Dst], edge: e})
		lid++
	}
	return dot.MarshalMulti(mg, "srv6", "", "\t")
}
