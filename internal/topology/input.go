package topology

import (
	"os"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
)

// Input is the abstract topology handed to the builder.
type Input struct {
	Routers   []string     `yaml:"routers"`
	Servers   []ServerSpec `yaml:"servers"`
	EdgeLinks []LinkSpec   `yaml:"edge_links"`
	CoreLinks []LinkSpec   `yaml:"core_links"`
}

// ServerSpec is a server and the number of virtual functions it hosts.
type ServerSpec struct {
	Name string `yaml:"name"`
	VNFs int    `yaml:"vnfs,omitempty"`
}

// LinkSpec is a link between two named nodes.
type LinkSpec struct {
	A         string `yaml:"a"`
	B         string `yaml:"b"`
	LinkProps `yaml:",inline"`
}

// LoadInput reads a topology from a YAML file.
func LoadInput(path string) (*Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	in, err := ParseInput(data)
	if err != nil {
		return nil, errors.Wrapf(err, "topology %s", path)
	}
	return in, nil
}

// ParseInput decodes and validates a YAML topology.
func ParseInput(data []byte) (*Input, error) {
	var in Input
	if err := yaml.UnmarshalWithOptions(data, &in, yaml.Strict()); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return &in, nil
}

// Validate checks that names are well formed and unique and that links join
// known nodes of the right kind.
func (in *Input) Validate() error {
	kinds := make(map[string]Kind)
	for _, r := range in.Routers {
		if !ValidName(r) {
			return errors.Wrapf(ErrInvalidName, "router %q", r)
		}
		if _, ok := kinds[r]; ok {
			return errors.Wrapf(ErrDuplicateNode, "node %q", r)
		}
		kinds[r] = KindRouter
	}
	for _, s := range in.Servers {
		if !ValidName(s.Name) {
			return errors.Wrapf(ErrInvalidName, "server %q", s.Name)
		}
		if _, ok := kinds[s.Name]; ok {
			return errors.Wrapf(ErrDuplicateNode, "node %q", s.Name)
		}
		if s.VNFs < 0 {
			return errors.Errorf("server %q: negative vnf count", s.Name)
		}
		kinds[s.Name] = KindServer
	}
	if _, ok := kinds[MgmtStation]; ok {
		return errors.Wrapf(ErrDuplicateNode, "node %q is reserved for the management station", MgmtStation)
	}

	check := func(l LinkSpec, kind LinkKind, a, b Kind) error {
		ka, ok := kinds[l.A]
		if !ok {
			return errors.Wrapf(ErrUnknownNode, "%s link %s-%s: node %q", kind, l.A, l.B, l.A)
		}
		kb, ok := kinds[l.B]
		if !ok {
			return errors.Wrapf(ErrUnknownNode, "%s link %s-%s: node %q", kind, l.A, l.B, l.B)
		}
		if ka != a || kb != b {
			return errors.Wrapf(ErrInvalidLink, "%s link %s-%s must join a %s and a %s", kind, l.A, l.B, a, b)
		}
		return nil
	}
	for _, l := range in.EdgeLinks {
		if err := check(l, LinkEdge, KindRouter, KindServer); err != nil {
			return err
		}
	}
	for _, l := range in.CoreLinks {
		if err := check(l, LinkCore, KindRouter, KindRouter); err != nil {
			return err
		}
		if l.A == l.B {
			return errors.Wrapf(ErrInvalidLink, "core link from %q to itself", l.A)
		}
	}
	return nil
}
