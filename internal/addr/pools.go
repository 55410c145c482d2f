package addr

import (
	"net/netip"

	"github.com/pkg/errors"
	"go4.org/netipx"
)

// Plan describes the address spaces of a deployment.
type Plan struct {
	MgmtNet        string
	MgmtBits       int
	DataPlaneSpace string
	LinkBits       int
	VNFBits        int
	LoopbackNet    string
	RouterIDNet    string
}

// Pools holds one allocator per address space. None of them share a cursor.
type Pools struct {
	Mgmt      *Pool
	Loopback  *Pool
	RouterID  *Pool
	DataPlane *SubnetPool

	// LinkBits is the prefix length of the addresses drawn on a link subnet.
	LinkBits int
	// VNFBits is the prefix length of virtual function addresses.
	VNFBits int
}

// NewPools creates the pools of a plan.
func NewPools(p Plan) (*Pools, error) {
	mgmt, err := NewPool("mgmt", p.MgmtNet, p.MgmtBits)
	if err != nil {
		return nil, err
	}
	loopback, err := NewPool("loopback", p.LoopbackNet, hostBits(p.LoopbackNet))
	if err != nil {
		return nil, err
	}
	routerID, err := NewPool("router-id", p.RouterIDNet, hostBits(p.RouterIDNet))
	if err != nil {
		return nil, err
	}
	dataPlane, err := NewSubnetPool("dataplane", p.DataPlaneSpace, p.LinkBits)
	if err != nil {
		return nil, err
	}
	return &Pools{
		Mgmt:      mgmt,
		Loopback:  loopback,
		RouterID:  routerID,
		DataPlane: dataPlane,
		LinkBits:  p.LinkBits,
		VNFBits:   p.VNFBits,
	}, nil
}

// Disjoint fails if any two prefixes overlap.
func Disjoint(prefixes ...netip.Prefix) error {
	var b netipx.IPSetBuilder
	for _, p := range prefixes {
		set, err := b.IPSet()
		if err != nil {
			return err
		}
		if set.OverlapsPrefix(p) {
			return errors.Errorf("prefix %s overlaps another pool", p)
		}
		b.AddPrefix(p)
	}
	return nil
}

// hostBits returns the full address length of the family of prefix.
func hostBits(prefix string) int {
	p, err := netip.ParsePrefix(prefix)
	if err != nil || p.Addr().Is6() {
		return 128
	}
	return 32
}
