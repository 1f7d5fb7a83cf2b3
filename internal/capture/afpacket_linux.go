//go:build linux

package capture

import (
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/core"
)

// AFPacketSource captures through an AF_PACKET v3 ring, bypassing
// libpcap's per-packet syscall on busy hosts.
type AFPacketSource struct {
	device string
	handle *afpacket.TPacket
}

func NewAFPacketSource(device string) Source {
	return &AFPacketSource{device: device}
}

func (s *AFPacketSource) Open() error {
	frameSize, blockSize, numBlocks, err := ringLayout(bufferSizeMB, snapLen, os.Getpagesize())
	if err != nil {
		return fmt.Errorf("failed to size af_packet ring: %w", err)
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(s.device),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(pollTimeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return fmt.Errorf("failed to open af_packet ring on %s: %w", s.device, err)
	}

	// AF_PACKET has no filter compiler of its own: compile through pcap
	// and hand the raw program to the socket.
	prog, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, frameSize, bpfFilter)
	if err != nil {
		tp.Close()
		return fmt.Errorf("failed to compile bpf filter %q: %w", bpfFilter, err)
	}
	raw := make([]bpf.RawInstruction, len(prog))
	for i, inst := range prog {
		raw[i] = bpf.RawInstruction{Op: inst.Code, Jt: inst.Jt, Jf: inst.Jf, K: inst.K}
	}
	if err := tp.SetBPF(raw); err != nil {
		tp.Close()
		return fmt.Errorf("failed to attach bpf filter: %w", err)
	}

	s.handle = tp
	return nil
}

func (s *AFPacketSource) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if s.handle == nil {
		return nil, gopacket.CaptureInfo{}, core.ErrSourceClosed
	}
	data, ci, err := s.handle.ReadPacketData()
	if err == afpacket.ErrTimeout {
		return nil, ci, ErrReadTimeout
	}
	return data, ci, err
}

// LinkType is always Ethernet: AF_PACKET raw sockets deliver the frame
// as seen on the wire.
func (s *AFPacketSource) LinkType() core.LinkType {
	return core.LinkEthernet
}

func (s *AFPacketSource) Close() error {
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
	return nil
}
