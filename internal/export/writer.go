package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/netip"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"

	"github.com/zinrai/srv6-tinet/internal/daemoncfg"
	"github.com/zinrai/srv6-tinet/internal/routing"
	"github.com/zinrai/srv6-tinet/internal/topology"
)

// Deployment file names.
const (
	TopologyFileName = "topology.json"
	RoutingFileName  = "routing.json"
	VNFsFileName     = "vnfs.json"
	NodesFileName    = "nodes.sh"
	DOTFileName      = "topology.dot"
	SpecFileName     = "tinet.yaml"
)

// Options control the rendering of a deployment.
type Options struct {
	// Image is the container image of every node.
	Image string
	// Templates renders one config per daemon and router. Optional.
	Templates *daemoncfg.Templates
	// AreaRange is handed to daemon templates.
	AreaRange netip.Prefix
}

// Deployment holds every rendered file of a deployment directory.
type Deployment struct {
	Model *Model
	Spec  Spec
	files map[string][]byte
}

// Render renders all deployment files in memory. Nothing is written, so a
// failure leaves no partial deployment behind.
func Render(g *topology.Graph, res *routing.Result, opts Options) (*Deployment, error) {
	routes := res.Routes
	d := &Deployment{
		Model: Flatten(g, routes),
		files: make(map[string][]byte),
	}

	jsonFiles := map[string]any{
		TopologyFileName: d.Model.Topology,
		RoutingFileName:  d.Model.Routing,
		VNFsFileName:     d.Model.VNFs,
	}
	for name, v := range jsonFiles {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, errors.Wrapf(err, "render %s", name)
		}
		d.files[name] = append(data, '\n')
	}

	d.files[NodesFileName] = nodesScript(d.Model.Mgmt)

	dotData, err := DOT(g)
	if err != nil {
		return nil, errors.Wrapf(err, "render %s", DOTFileName)
	}
	d.files[DOTFileName] = append(dotData, '\n')

	daemons := opts.Templates.Names()
	for _, n := range g.Nodes() {
		if n.Kind != topology.KindRouter {
			continue
		}
		data := daemoncfg.RouterData(n, opts.AreaRange)
		for _, daemon := range daemons {
			conf, err := opts.Templates.Render(daemon, data)
			if err != nil {
				return nil, errors.Wrapf(err, "router %s", n.ID)
			}
			d.files[DaemonConfigPath(n.ID, daemon)] = []byte(conf)
		}
	}

	d.Spec = BuildSpec(g, routes, opts.Image, daemons)
	specData, err := yaml.MarshalWithOptions(d.Spec, yaml.IndentSequence(true))
	if err != nil {
		return nil, errors.Wrapf(err, "render %s", SpecFileName)
	}
	d.files[SpecFileName] = specData
	return d, nil
}

func nodesScript(mgmt []string) []byte {
	var buf bytes.Buffer
	buf.WriteString("#!/bin/bash\n")
	buf.WriteString("declare -a NODES=(")
	for i, a := range mgmt {
		if i > 0 {
			buf.WriteByte(' ')
		}
		fmt.Fprintf(&buf, "%q", a)
	}
	buf.WriteString(")\n")
	return buf.Bytes()
}

// Files returns the relative paths of all files in lexical order.
func (d *Deployment) Files() []string {
	names := make([]string, 0, len(d.files))
	for name := range d.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// File returns the content of a rendered file.
func (d *Deployment) File(name string) ([]byte, bool) {
	data, ok := d.files[name]
	return data, ok
}

// Write writes all files below dir, creating directories as needed. Paths are
// checked before the first file is written.
func (d *Deployment) Write(dir string) error {
	if err := d.checkPaths(); err != nil {
		return err
	}
	for _, name := range d.Files() {
		dst := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return errors.Wrapf(err, "failed to create directory %s", filepath.Dir(dst))
		}
		mode := os.FileMode(0644)
		if name == NodesFileName {
			mode = 0755
		}
		if err := os.WriteFile(dst, d.files[name], mode); err != nil {
			return errors.Wrapf(err, "failed to write %s", dst)
		}
	}
	return nil
}

// checkPaths rejects paths leaving the deployment directory and files that
// would be created where another file needs a directory.
func (d *Deployment) checkPaths() error {
	dirs := make(map[string]string)
	for _, name := range d.Files() {
		if !filepath.IsLocal(filepath.FromSlash(name)) || path.Clean(name) != name {
			return errors.Errorf("deployment path %q is not local", name)
		}
		for p := path.Dir(name); p != "."; p = path.Dir(p) {
			dirs[p] = name
		}
	}
	for _, name := range d.Files() {
		if other, ok := dirs[name]; ok {
			return errors.Errorf("deployment path %q collides with %q", name, other)
		}
	}
	return nil
}
