package capture

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/core"
)

// LiveSource captures from a network interface through libpcap.
type LiveSource struct {
	device string
	handle *pcap.Handle
}

func NewLiveSource(device string) *LiveSource {
	return &LiveSource{device: device}
}

func (s *LiveSource) Open() error {
	inactive, err := pcap.NewInactiveHandle(s.device)
	if err != nil {
		return fmt.Errorf("failed to create capture handle on %s: %w", s.device, err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(snapLen); err != nil {
		return fmt.Errorf("failed to set snap length: %w", err)
	}
	if err := inactive.SetPromisc(true); err != nil {
		return fmt.Errorf("failed to set promiscuous mode: %w", err)
	}
	if err := inactive.SetTimeout(pollTimeout); err != nil {
		return fmt.Errorf("failed to set read timeout: %w", err)
	}
	if err := inactive.SetBufferSize(bufferBytes); err != nil {
		return fmt.Errorf("failed to set capture buffer size: %w", err)
	}

	handle, err := inactive.Activate()
	if err != nil {
		return fmt.Errorf("failed to open device %s: %w", s.device, err)
	}
	if err := handle.SetBPFFilter(bpfFilter); err != nil {
		handle.Close()
		return fmt.Errorf("failed to set bpf filter %q: %w", bpfFilter, err)
	}

	s.handle = handle
	return nil
}

func (s *LiveSource) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if s.handle == nil {
		return nil, gopacket.CaptureInfo{}, core.ErrSourceClosed
	}
	data, ci, err := s.handle.ReadPacketData()
	if err == pcap.NextErrorTimeoutExpired {
		return nil, ci, ErrReadTimeout
	}
	return data, ci, err
}

func (s *LiveSource) LinkType() core.LinkType {
	if s.handle == nil {
		return core.LinkEthernet
	}
	return core.LinkType(s.handle.LinkType())
}

func (s *LiveSource) Close() error {
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
	return nil
}
