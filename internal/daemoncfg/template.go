// Package daemoncfg renders routing daemon configuration files from
// user-supplied templates.
package daemoncfg

import (
	"bytes"
	"fmt"
	"net/netip"
	"os"
	"text/template"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"

	"github.com/zinrai/srv6-tinet/internal/topology"
)

// Templates holds one configuration template per daemon. Daemons keep the
// order of the file, which is also their start order.
type Templates struct {
	Daemons yaml.MapSlice `yaml:"daemons"`

	names  []string
	parsed map[string]*template.Template
}

// Net is an interface address handed to templates.
type Net struct {
	Intf string
	IP   string
	Net  string
}

// Data holds data for template rendering.
type Data struct {
	Hostname  string
	RouterID  string
	Nets      []Net
	AreaRange string
}

// LoadTemplates loads templates from a YAML file.
func LoadTemplates(path string) (*Templates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := ParseTemplates(data)
	if err != nil {
		return nil, errors.Wrapf(err, "templates %s", path)
	}
	return t, nil
}

// ParseTemplates decodes a YAML template document and parses every template.
func ParseTemplates(data []byte) (*Templates, error) {
	var t Templates
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	t.parsed = make(map[string]*template.Template, len(t.Daemons))
	for _, item := range t.Daemons {
		name := fmt.Sprint(item.Key)
		text, ok := item.Value.(string)
		if !ok {
			return nil, errors.Errorf("daemon %s: template is not a string", name)
		}
		if _, dup := t.parsed[name]; dup {
			return nil, errors.Errorf("daemon %s: defined twice", name)
		}
		tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, errors.Wrapf(err, "daemon %s", name)
		}
		t.names = append(t.names, name)
		t.parsed[name] = tmpl
	}
	return &t, nil
}

// Names returns the daemons in file order.
func (t *Templates) Names() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.names...)
}

// Render renders the template of daemon with the given data.
func (t *Templates) Render(daemon string, data Data) (string, error) {
	if t == nil {
		return "", errors.Errorf("no template for daemon %s", daemon)
	}
	tmpl, ok := t.parsed[daemon]
	if !ok {
		return "", errors.Errorf("no template for daemon %s", daemon)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "daemon %s", daemon)
	}
	return buf.String(), nil
}

// RouterData collects the template data of a router node.
func RouterData(n *topology.Node, areaRange netip.Prefix) Data {
	d := Data{Hostname: n.ID}
	if r := n.Router(); r != nil && r.RouterID.IsValid() {
		d.RouterID = r.RouterID.String()
	}
	if areaRange.IsValid() {
		d.AreaRange = areaRange.String()
	}
	for _, net := range n.Nets {
		d.Nets = append(d.Nets, Net{
			Intf: net.Intf,
			IP:   net.IP.String(),
			Net:  net.Net.Masked().String(),
		})
	}
	return d
}
