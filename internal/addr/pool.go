// Package addr allocates management, loopback, router-id and data-plane
// addresses. Every pool is an independent cursor over its own prefix.
package addr

import (
	"net"
	"net/netip"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/pkg/errors"
	"go4.org/netipx"
)

// ErrPoolExhausted is returned when a pool has no host or subnet left.
var ErrPoolExhausted = errors.New("address pool exhausted")

// Pool hands out the host addresses of a prefix in ascending order, starting
// right after the network address. IPv4 pools also keep the broadcast address.
// Addresses are never handed out twice.
type Pool struct {
	name    string
	network *net.IPNet
	bits    int
	next    net.IP
	last    net.IP
	done    bool
}

// NewPool creates a pool over prefix. Issued addresses carry a prefix length
// of bits, which must not be shorter than the pool prefix.
func NewPool(name, prefix string, bits int) (*Pool, error) {
	_, network, err := net.ParseCIDR(prefix)
	if err != nil {
		return nil, errors.Wrapf(err, "pool %s", name)
	}
	return newPool(name, network, bits)
}

// NewHostPool creates a pool over an already allocated subnet.
func NewHostPool(name string, subnet netip.Prefix, bits int) (*Pool, error) {
	if !subnet.IsValid() {
		return nil, errors.Errorf("pool %s: invalid subnet", name)
	}
	return newPool(name, netipx.PrefixIPNet(subnet.Masked()), bits)
}

func newPool(name string, network *net.IPNet, bits int) (*Pool, error) {
	ones, size := network.Mask.Size()
	if bits < ones || bits > size {
		return nil, errors.Errorf("pool %s: prefix length /%d does not fit %s", name, bits, network)
	}
	first, last := cidr.AddressRange(network)
	if len(network.IP) == net.IPv4len && ones < size-1 {
		last = cidr.Dec(last)
	}
	p := &Pool{
		name:    name,
		network: network,
		bits:    bits,
		next:    cidr.Inc(first),
		last:    last,
	}
	if !network.Contains(p.next) || compare(p.next, p.last) > 0 {
		p.done = true
	}
	return p, nil
}

// Next returns the next unused address.
func (p *Pool) Next() (netip.Prefix, error) {
	if p.done {
		return netip.Prefix{}, errors.Wrapf(ErrPoolExhausted, "pool %s (%s)", p.name, p.network)
	}
	ip, ok := netipx.FromStdIP(p.next)
	if !ok {
		return netip.Prefix{}, errors.Errorf("pool %s: bad address %s", p.name, p.next)
	}
	if p.next.Equal(p.last) {
		p.done = true
	} else {
		p.next = cidr.Inc(p.next)
	}
	return netip.PrefixFrom(ip, p.bits), nil
}

// Prefix returns the prefix the pool draws from.
func (p *Pool) Prefix() netip.Prefix {
	pfx, _ := netipx.FromStdIPNet(p.network)
	return pfx
}

func compare(a, b net.IP) int {
	x, _ := netipx.FromStdIP(a)
	y, _ := netipx.FromStdIP(b)
	return x.Compare(y)
}
