package addr

import (
	"math"
	"net"
	"net/netip"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/pkg/errors"
	"go4.org/netipx"
)

// SubnetPool carves a space into equally sized subnets, handed out in
// ascending order.
type SubnetPool struct {
	name    string
	space   *net.IPNet
	newBits int
	index   int
	total   int
}

// NewSubnetPool creates a pool of /bits subnets out of space.
func NewSubnetPool(name, space string, bits int) (*SubnetPool, error) {
	_, network, err := net.ParseCIDR(space)
	if err != nil {
		return nil, errors.Wrapf(err, "subnet pool %s", name)
	}
	ones, size := network.Mask.Size()
	if bits < ones || bits > size {
		return nil, errors.Errorf("subnet pool %s: /%d does not fit %s", name, bits, network)
	}
	newBits := bits - ones
	total := math.MaxInt
	if newBits < 62 {
		total = 1 << newBits
	}
	return &SubnetPool{
		name:    name,
		space:   network,
		newBits: newBits,
		total:   total,
	}, nil
}

// Next returns the next unused subnet.
func (s *SubnetPool) Next() (netip.Prefix, error) {
	if s.index >= s.total {
		return netip.Prefix{}, errors.Wrapf(ErrPoolExhausted, "subnet pool %s (%s)", s.name, s.space)
	}
	sub, err := cidr.Subnet(s.space, s.newBits, s.index)
	if err != nil {
		return netip.Prefix{}, errors.Wrapf(err, "subnet pool %s", s.name)
	}
	s.index++
	pfx, ok := netipx.FromStdIPNet(sub)
	if !ok {
		return netip.Prefix{}, errors.Errorf("subnet pool %s: bad subnet %s", s.name, sub)
	}
	return pfx, nil
}

// Prefix returns the space the pool carves.
func (s *SubnetPool) Prefix() netip.Prefix {
	pfx, _ := netipx.FromStdIPNet(s.space)
	return pfx
}
