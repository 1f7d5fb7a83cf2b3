//go:build !linux

package capture

import (
	"fmt"
	"runtime"

	"github.com/google/gopacket"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/core"
)

// AF_PACKET is a Linux socket family; elsewhere the constructor still
// exists so the CLI flag parses, but Open reports the platform gap.
type afpacketUnsupported struct{}

func NewAFPacketSource(device string) Source {
	return afpacketUnsupported{}
}

func (afpacketUnsupported) Open() error {
	return fmt.Errorf("af_packet capture requires linux, running on %s", runtime.GOOS)
}

func (afpacketUnsupported) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	return nil, gopacket.CaptureInfo{}, core.ErrSourceClosed
}

func (afpacketUnsupported) LinkType() core.LinkType { return core.LinkEthernet }

func (afpacketUnsupported) Close() error { return nil }
