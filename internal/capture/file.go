package capture

import (
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/core"
)

// FileSource replays a pcap capture file through the same pipeline the
// live sources feed. ReadPacket returns io.EOF once the file is
// drained.
type FileSource struct {
	path   string
	handle *pcap.Handle
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Open() error {
	if s.path == "" {
		return fmt.Errorf("capture file path is required")
	}
	handle, err := pcap.OpenOffline(s.path)
	if err != nil {
		return fmt.Errorf("failed to open capture file %s: %w", s.path, err)
	}
	// Replay carries everything the file holds; the filter keeps parity
	// with live capture so a noisy file behaves the same.
	if err := handle.SetBPFFilter(bpfFilter); err != nil {
		handle.Close()
		return fmt.Errorf("failed to set bpf filter %q: %w", bpfFilter, err)
	}
	s.handle = handle
	return nil
}

func (s *FileSource) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if s.handle == nil {
		return nil, gopacket.CaptureInfo{}, core.ErrSourceClosed
	}
	data, ci, err := s.handle.ReadPacketData()
	if err != nil && err != io.EOF {
		return nil, ci, fmt.Errorf("failed to read packet: %w", err)
	}
	return data, ci, err
}

func (s *FileSource) LinkType() core.LinkType {
	if s.handle == nil {
		return core.LinkEthernet
	}
	return core.LinkType(s.handle.LinkType())
}

func (s *FileSource) Close() error {
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
	return nil
}
