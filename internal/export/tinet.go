package export

import (
	"github.com/zinrai/srv6-tinet/internal/routing"
	"github.com/zinrai/srv6-tinet/internal/topology"
)

const (
	// DefaultImage is the container image used for all nodes.
	DefaultImage = "ghcr.io/zinrai/docker-debian-frr:debian-trixie"

	// MgmtBridgeName is the switch joining every management interface.
	MgmtBridgeName = "br-mgmt"

	// ConfigMount is where tinet mounts the deployment directory.
	ConfigMount = "/tinet"
)

// Spec represents the tinet specification.
type Spec struct {
	Nodes       []Node       `yaml:"nodes"`
	Switches    []Switch     `yaml:"switches,omitempty"`
	NodeConfigs []NodeConfig `yaml:"node_configs"`
}

// Node represents a network node.
type Node struct {
	Name       string      `yaml:"name"`
	Image      string      `yaml:"image"`
	Interfaces []Interface `yaml:"interfaces"`
}

// Interface represents a network interface.
type Interface struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Args string `yaml:"args"`
}

// Switch represents an OVS switch.
type Switch struct {
	Name       string      `yaml:"name"`
	Interfaces []Interface `yaml:"interfaces"`
}

// NodeConfig represents the configuration commands for a node.
type NodeConfig struct {
	Name string    `yaml:"name"`
	Cmds []Command `yaml:"cmds"`
}

// Command represents a shell command.
type Command struct {
	Cmd string `yaml:"cmd"`
}

// BuildSpec generates the tinet specification of g. Nodes appear in creation
// order with their interfaces in port order. A data link is declared on its
// lhs node only, tinet creates the peer end. Management interfaces are
// bridged onto the management switch.
func BuildSpec(g *topology.Graph, routes routing.Table, image string, daemons []string) Spec {
	if image == "" {
		image = DefaultImage
	}
	spec := Spec{}
	mgmt := Switch{Name: MgmtBridgeName, Interfaces: []Interface{}}

	for _, n := range g.Nodes() {
		node := Node{Name: n.ID, Image: image, Interfaces: []Interface{}}
		for _, e := range g.Out(n.ID) {
			switch {
			case e.Kind == topology.LinkManagement:
				node.Interfaces = append(node.Interfaces, Interface{
					Name: e.SrcIntf,
					Type: "bridge",
					Args: MgmtBridgeName,
				})
				mgmt.Interfaces = append(mgmt.Interfaces, Interface{
					Name: e.SrcIntf,
					Type: "container",
					Args: n.ID,
				})
			case e.Forward:
				node.Interfaces = append(node.Interfaces, Interface{
					Name: e.SrcIntf,
					Type: "direct",
					Args: e.Dst + "#" + e.DstIntf,
				})
			}
		}
		spec.Nodes = append(spec.Nodes, node)

		var nodeDaemons []string
		if n.Kind == topology.KindRouter {
			nodeDaemons = daemons
		}
		spec.NodeConfigs = append(spec.NodeConfigs, NodeConfig{
			Name: n.ID,
			Cmds: HostCommands(g, n, routes[n.ID], nodeDaemons),
		})
	}

	if len(mgmt.Interfaces) > 0 {
		spec.Switches = []Switch{mgmt}
	}
	return spec
}
