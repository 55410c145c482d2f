package export

import (
	"encoding/json"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zinrai/srv6-tinet/internal/addr"
	"github.com/zinrai/srv6-tinet/internal/daemoncfg"
	"github.com/zinrai/srv6-tinet/internal/routing"
	"github.com/zinrai/srv6-tinet/internal/topology"
)

// buildTestGraph builds r2 -- r1 -- s1 where s1 hosts one virtual function.
//
//	mgmt: r2 2000::1, r1 2000::2, s1 2000::3, mgt 2000::4
//	vnf subnet 2001::/64, edge r1-s1 2001:0:0:1::/64, core r1-r2 2001:0:0:2::/64
func buildTestGraph(t *testing.T) (*topology.Graph, *routing.Result) {
	t.Helper()
	pools, err := addr.NewPools(addr.Plan{
		MgmtNet:        "2000::/64",
		MgmtBits:       64,
		DataPlaneSpace: "2001::/56",
		LinkBits:       64,
		VNFBits:        128,
		LoopbackNet:    "fcff::/64",
		RouterIDNet:    "10.255.0.0/16",
	})
	require.NoError(t, err)
	in := &topology.Input{
		Routers:   []string{"r2", "r1"},
		Servers:   []topology.ServerSpec{{Name: "s1", VNFs: 1}},
		EdgeLinks: []topology.LinkSpec{{A: "r1", B: "s1", LinkProps: topology.LinkProps{Bandwidth: 1, Delay: "1000us"}}},
		CoreLinks: []topology.LinkSpec{{A: "r1", B: "r2"}},
	}
	g, err := topology.NewBuilder(pools, nil).Build(in)
	require.NoError(t, err)
	return g, routing.NewPlanner(nil).Plan(g)
}

func TestFlatten(t *testing.T) {
	g, res := buildTestGraph(t)
	m := Flatten(g, res.Routes)

	wantNodes := []NodeRecord{
		{ID: "r1", Type: "router", MgmtIP: "2000::2/64", Group: 200, LoopbackIP: "fcff::2", RouterID: "10.255.0.2"},
		{ID: "r2", Type: "router", MgmtIP: "2000::1/64", Group: 200, LoopbackIP: "fcff::1", RouterID: "10.255.0.1"},
		{ID: "s1", Type: "server", MgmtIP: "2000::3/64", Group: 1},
	}
	if diff := cmp.Diff(wantNodes, m.Topology.Nodes); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}

	wantLinks := []LinkRecord{
		{
			Source: "r1", Target: "r2", LhsIntf: "r1-eth2", RhsIntf: "r2-eth1",
			LhsIP: "2001:0:0:2::1", RhsIP: "2001:0:0:2::2", Subnet: "2001:0:0:2::/64", Kind: "core",
		},
		{
			Source: "r1", Target: "s1", LhsIntf: "r1-eth1", RhsIntf: "s1-eth1",
			LhsIP: "2001:0:0:1::1", RhsIP: "2001:0:0:1::2", Subnet: "2001:0:0:1::/64", Kind: "edge",
			Bw: 1, Delay: "1000us",
		},
		{
			Source: "r2", Target: "r1", LhsIntf: "r2-eth1", RhsIntf: "r1-eth2",
			LhsIP: "2001:0:0:2::2", RhsIP: "2001:0:0:2::1", Subnet: "2001:0:0:2::/64", Kind: "core",
		},
		{
			Source: "s1", Target: "r1", LhsIntf: "s1-eth1", RhsIntf: "r1-eth1",
			LhsIP: "2001:0:0:1::2", RhsIP: "2001:0:0:1::1", Subnet: "2001:0:0:1::/64", Kind: "edge",
			Bw: 1, Delay: "1000us",
		},
	}
	if diff := cmp.Diff(wantLinks, m.Topology.Links); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}

	wantRouting := map[string][]RouteRecord{
		"r1": {
			{Subnet: "2001::/64", Gateway: "2001:0:0:1::2", Device: "r1-eth1"},
		},
		"r2": {
			{Subnet: "2001::/64", Gateway: "2001:0:0:2::1", Device: "r2-eth1"},
			{Subnet: "2001:0:0:1::/64", Gateway: "2001:0:0:2::1", Device: "r2-eth1"},
		},
	}
	if diff := cmp.Diff(wantRouting, m.Routing); diff != "" {
		t.Errorf("routing mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, map[string][]string{"s1": {"2001::1/128"}}, m.VNFs)
	assert.Equal(t, []string{"2000::1", "2000::2", "2000::3", "2000::4"}, m.Mgmt)
}

func TestTopologyFileShape(t *testing.T) {
	g, res := buildTestGraph(t)
	data, err := json.Marshal(Flatten(g, res.Routes).Topology)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, true, doc["directed"])
	assert.Equal(t, true, doc["multigraph"])
	assert.Equal(t, map[string]any{}, doc["graph"])

	links := doc["links"].([]any)
	core := links[0].(map[string]any)
	assert.NotContains(t, core, "bw")
	assert.NotContains(t, core, "delay")
	edge := links[1].(map[string]any)
	assert.Equal(t, 1.0, edge["bw"])

	// Every link has its reverse with both ends swapped
	require.Len(t, links, 4)
	for _, l := range links {
		fwd := l.(map[string]any)
		found := 0
		for _, o := range links {
			rev := o.(map[string]any)
			if rev["source"] == fwd["target"] && rev["target"] == fwd["source"] &&
				rev["lhs_intf"] == fwd["rhs_intf"] && rev["rhs_intf"] == fwd["lhs_intf"] &&
				rev["lhs_ip"] == fwd["rhs_ip"] && rev["rhs_ip"] == fwd["lhs_ip"] &&
				rev["subnet"] == fwd["subnet"] && rev["kind"] == fwd["kind"] &&
				rev["bw"] == fwd["bw"] && rev["delay"] == fwd["delay"] {
				found++
			}
		}
		assert.Equal(t, 1, found, "reverse of %v", fwd)
	}
}

func TestBuildSpec(t *testing.T) {
	g, res := buildTestGraph(t)
	spec := BuildSpec(g, res.Routes, "", []string{"zebra"})

	var names []string
	for _, n := range spec.Nodes {
		names = append(names, n.Name)
		assert.Equal(t, DefaultImage, n.Image)
	}
	assert.Equal(t, []string{"r2", "r1", "s1", "mgt"}, names)

	r1 := spec.Nodes[1]
	assert.Equal(t, []Interface{
		{Name: "r1-eth0", Type: "bridge", Args: MgmtBridgeName},
		{Name: "r1-eth1", Type: "direct", Args: "s1#s1-eth1"},
		{Name: "r1-eth2", Type: "direct", Args: "r2#r2-eth1"},
	}, r1.Interfaces)

	// The rhs of a data link is created by tinet
	s1 := spec.Nodes[2]
	assert.Equal(t, []Interface{{Name: "s1-eth0", Type: "bridge", Args: MgmtBridgeName}}, s1.Interfaces)

	require.Len(t, spec.Switches, 1)
	sw := spec.Switches[0]
	assert.Equal(t, MgmtBridgeName, sw.Name)
	assert.Len(t, sw.Interfaces, 6)
	assert.Contains(t, sw.Interfaces, Interface{Name: "mgt-eth2", Type: "container", Args: "mgt"})
	assert.Contains(t, sw.Interfaces, Interface{Name: "s1-eth0", Type: "container", Args: "s1"})

	require.Len(t, spec.NodeConfigs, 4)
	assert.Equal(t, "r1", spec.NodeConfigs[1].Name)
}

func cmdStrings(cmds []Command) []string {
	out := make([]string, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, c.Cmd)
	}
	return out
}

func TestHostCommands(t *testing.T) {
	g, res := buildTestGraph(t)

	r2, _ := g.Node("r2")
	cmds := cmdStrings(HostCommands(g, r2, res.Routes["r2"], []string{"zebra", "ospf6d"}))
	assert.Equal(t, []string{
		"ip link set dev r2-eth0 address 02:36:00:00:00:00",
		"ip link set dev r2-eth1 address 02:36:00:00:00:09",
		"ip -6 addr add 2000::1/64 dev r2-eth0",
		"ip addr add 10.255.0.1/32 dev lo",
		"sysctl -w net.ipv6.conf.all.forwarding=1",
		"sysctl -w net.ipv6.conf.all.seg6_enabled=1",
		"sysctl -w net.ipv6.conf.default.seg6_enabled=1",
		"sysctl -w net.ipv6.conf.all.accept_ra=0",
		"sysctl -w net.ipv6.conf.r2-eth1.seg6_enabled=1",
		"ip -6 addr add fcff::1/128 dev lo",
		"ip -6 addr add 2001:0:0:2::2/64 dev r2-eth1",
		"ip -6 route add 2001::/64 via 2001:0:0:2::1 dev r2-eth1",
		"ip -6 route add 2001:0:0:1::/64 via 2001:0:0:2::1 dev r2-eth1",
		"cp /tinet/r2/zebra.conf /etc/frr/zebra.conf",
		"cp /tinet/r2/ospf6d.conf /etc/frr/ospf6d.conf",
		"mkdir -p /var/run/frr",
		"chown -R frr:frr /var/run/frr /etc/frr",
		"/usr/lib/frr/zebra -d -f /etc/frr/zebra.conf",
		"/usr/lib/frr/ospf6d -d -f /etc/frr/ospf6d.conf",
	}, cmds)

	s1, _ := g.Node("s1")
	cmds = cmdStrings(HostCommands(g, s1, nil, nil))
	assert.Contains(t, cmds, "ip -6 addr add 2001::1/128 dev lo")
	assert.Contains(t, cmds, "ip -6 addr add 2001:0:0:1::2/64 dev s1-eth1")
	assert.Contains(t, cmds, "ip -6 route add default via 2001:0:0:1::1 dev s1-eth1")
	assert.NotContains(t, cmds, "sysctl -w net.ipv6.conf.all.accept_ra=0")

	mgt, _ := g.Node(topology.MgmtStation)
	cmds = cmdStrings(HostCommands(g, mgt, nil, nil))
	assert.Contains(t, cmds, "ip -6 addr add 2000::4/64 dev mgt-eth0")
	addrs := 0
	for _, c := range cmds {
		assert.False(t, strings.HasPrefix(c, "sysctl"), "management station runs %q", c)
		if strings.Contains(c, "addr add") {
			addrs++
		}
	}
	assert.Equal(t, 1, addrs)
}

func TestDOT(t *testing.T) {
	g, _ := buildTestGraph(t)
	data, err := DOT(g)
	require.NoError(t, err)
	out := string(data)

	assert.True(t, strings.HasPrefix(out, "strict digraph srv6 {") || strings.HasPrefix(out, "digraph srv6 {"), out)
	assert.Contains(t, out, "r1")
	assert.Contains(t, out, "s1")
	assert.NotContains(t, out, "mgt")
	assert.Contains(t, out, "2001:0:0:1::/64")
	assert.Contains(t, out, "r1-eth2")
	assert.Equal(t, 2, strings.Count(out, "->"))

	again, err := DOT(g)
	require.NoError(t, err)
	assert.Equal(t, out, string(again))
}

func TestRenderAndWrite(t *testing.T) {
	g, res := buildTestGraph(t)
	tmpl, err := daemoncfg.ParseTemplates([]byte("daemons:\n  zebra: \"hostname {{ .Hostname }}\\n\"\n"))
	require.NoError(t, err)

	d, err := Render(g, res, Options{Templates: tmpl, AreaRange: netip.MustParsePrefix("2001::/56")})
	require.NoError(t, err)
	assert.Equal(t, []string{
		NodesFileName,
		"r1/zebra.conf",
		"r2/zebra.conf",
		RoutingFileName,
		SpecFileName,
		DOTFileName,
		TopologyFileName,
		VNFsFileName,
	}, d.Files())

	nodes, _ := d.File(NodesFileName)
	assert.Equal(t, "#!/bin/bash\ndeclare -a NODES=(\"2000::1\" \"2000::2\" \"2000::3\" \"2000::4\")\n", string(nodes))

	dir := t.TempDir()
	require.NoError(t, d.Write(dir))

	conf, err := os.ReadFile(filepath.Join(dir, "r1", "zebra.conf"))
	require.NoError(t, err)
	assert.Equal(t, "hostname r1\n", string(conf))

	routingData, err := os.ReadFile(filepath.Join(dir, RoutingFileName))
	require.NoError(t, err)
	var routes map[string][]RouteRecord
	require.NoError(t, json.Unmarshal(routingData, &routes))
	assert.Len(t, routes["r2"], 2)

	specData, err := os.ReadFile(filepath.Join(dir, SpecFileName))
	require.NoError(t, err)
	var spec Spec
	require.NoError(t, yaml.Unmarshal(specData, &spec))
	assert.Equal(t, d.Spec, spec)
	assert.Contains(t, cmdStrings(spec.NodeConfigs[1].Cmds), "/usr/lib/frr/zebra -d -f /etc/frr/zebra.conf")
}

func TestWriteRejectsBadPaths(t *testing.T) {
	tests := map[string]map[string][]byte{
		"file under a file": {
			NodesFileName:                 []byte("#!/bin/bash\n"),
			NodesFileName + "/zebra.conf": []byte("hostname x\n"),
		},
		"parent directory": {
			"../zebra.conf": []byte("hostname x\n"),
			"r1/zebra.conf": []byte("hostname r1\n"),
		},
		"absolute": {
			"/tmp/zebra.conf": []byte("hostname x\n"),
		},
		"unclean": {
			"r1/./zebra.conf": []byte("hostname x\n"),
		},
	}
	for name, files := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			d := &Deployment{files: files}
			assert.Error(t, d.Write(dir))

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestRenderTemplateError(t *testing.T) {
	g, res := buildTestGraph(t)
	tmpl, err := daemoncfg.ParseTemplates([]byte("daemons:\n  zebra: \"{{ .Missing }}\"\n"))
	require.NoError(t, err)

	_, err = Render(g, res, Options{Templates: tmpl})
	assert.Error(t, err)
}

func TestRenderDeterministic(t *testing.T) {
	g1, res1 := buildTestGraph(t)
	g2, res2 := buildTestGraph(t)
	d1, err := Render(g1, res1, Options{})
	require.NoError(t, err)
	d2, err := Render(g2, res2, Options{})
	require.NoError(t, err)

	for _, name := range d1.Files() {
		a, _ := d1.File(name)
		b, ok := d2.File(name)
		require.True(t, ok, name)
		assert.Equal(t, string(a), string(b), name)
	}
}
