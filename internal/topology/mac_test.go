package topology

import (
	"testing"
)

func TestInterfaceMAC(t *testing.T) {
	tests := []struct {
		n        uint32
		expected string
	}{
		{0, "02:36:00:00:00:00"},
		{1, "02:36:00:00:00:01"},
		{0x0100, "02:36:00:00:01:00"},
		{0xdeadbeef, "02:36:de:ad:be:ef"},
	}

	for _, tt := range tests {
		got := InterfaceMAC(tt.n)
		if got.String() != tt.expected {
			t.Errorf("InterfaceMAC(%d) = %s, want %s", tt.n, got, tt.expected)
		}
		if got[0]&0x01 != 0 {
			t.Errorf("InterfaceMAC(%d) = %s is multicast", tt.n, got)
		}
	}
}
