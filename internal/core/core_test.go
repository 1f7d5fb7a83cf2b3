package core

import (
	"fmt"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowKeyReverse(t *testing.T) {
	key := FlowKey{
		Src: Endpoint{Addr: netip.MustParseAddr("10.0.0.1"), Port: 12345},
		Dst: Endpoint{Addr: netip.MustParseAddr("10.0.0.2"), Port: 443},
	}

	rev := key.Reverse()
	assert.Equal(t, key.Src, rev.Dst)
	assert.Equal(t, key.Dst, rev.Src)
	assert.Equal(t, key, rev.Reverse())
}

func TestFlowKeyAsMapKey(t *testing.T) {
	key := FlowKey{
		Src: Endpoint{Addr: netip.MustParseAddr("10.0.0.1"), Port: 12345},
		Dst: Endpoint{Addr: netip.MustParseAddr("10.0.0.2"), Port: 443},
	}
	same := FlowKey{
		Src: Endpoint{Addr: netip.MustParseAddr("10.0.0.1"), Port: 12345},
		Dst: Endpoint{Addr: netip.MustParseAddr("10.0.0.2"), Port: 443},
	}

	m := map[FlowKey]int{key: 1}
	assert.Equal(t, 1, m[same])
}

func TestFlowKeyString(t *testing.T) {
	key := FlowKey{
		Src: Endpoint{Addr: netip.MustParseAddr("10.0.0.1"), Port: 12345},
		Dst: Endpoint{Addr: netip.MustParseAddr("10.0.0.2"), Port: 443},
	}
	assert.Equal(t, "10.0.0.1:12345 -> 10.0.0.2:443", key.String())

	var zero FlowKey
	assert.False(t, zero.IsValid())
	assert.Equal(t, "<none> -> <none>", zero.String())
}

func TestLinkTypeSupported(t *testing.T) {
	tests := []struct {
		link      LinkType
		name      string
		supported bool
	}{
		{LinkNull, "null", true},
		{LinkEthernet, "ethernet", true},
		{LinkLinuxSLL, "linux-sll", true},
		{LinkType(105), "linktype(105)", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.name, tt.link.String())
		assert.Equal(t, tt.supported, tt.link.Supported(), tt.name)
	}
}

func TestSentinelErrorsSurviveWrapping(t *testing.T) {
	wrapped := fmt.Errorf("open capture: %w", ErrDeviceNotFound)
	require.ErrorIs(t, wrapped, ErrDeviceNotFound)

	wrapped = fmt.Errorf("frame 17: %w", ErrFrameTooLarge)
	require.ErrorIs(t, wrapped, ErrFrameTooLarge)
}
