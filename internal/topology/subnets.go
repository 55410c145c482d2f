package topology

import (
	"net/netip"
	"slices"
)

// SubnetIndex maps every data-plane subnet to the nodes that have an
// interface on it, in the order they were attached. Subnets keep their
// allocation order.
type SubnetIndex struct {
	order    []netip.Prefix
	via      map[netip.Prefix][]string
	attached map[string][]netip.Prefix
}

// NewSubnetIndex returns an empty index.
func NewSubnetIndex() *SubnetIndex {
	return &SubnetIndex{
		via:      make(map[netip.Prefix][]string),
		attached: make(map[string][]netip.Prefix),
	}
}

// Add appends ids to the via list of subnet.
func (s *SubnetIndex) Add(subnet netip.Prefix, ids ...string) {
	if _, ok := s.via[subnet]; !ok {
		s.order = append(s.order, subnet)
		s.via[subnet] = nil
	}
	for _, id := range ids {
		if slices.Contains(s.via[subnet], id) {
			continue
		}
		s.via[subnet] = append(s.via[subnet], id)
		s.attached[id] = append(s.attached[id], subnet)
	}
}

// Subnets returns all subnets in allocation order.
func (s *SubnetIndex) Subnets() []netip.Prefix {
	return slices.Clone(s.order)
}

// Via returns the via candidates of subnet.
func (s *SubnetIndex) Via(subnet netip.Prefix) []string {
	return slices.Clone(s.via[subnet])
}

// Attached returns the subnets id has an interface on.
func (s *SubnetIndex) Attached(id string) []netip.Prefix {
	return slices.Clone(s.attached[id])
}

// OnLink reports whether id is directly attached to subnet.
func (s *SubnetIndex) OnLink(subnet netip.Prefix, id string) bool {
	return slices.Contains(s.via[subnet], id)
}

// Len returns the number of subnets.
func (s *SubnetIndex) Len() int {
	return len(s.order)
}
