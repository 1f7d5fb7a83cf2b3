// Package capture provides the link-layer packet sources: live pcap,
// offline pcap file replay and, on Linux, an AF_PACKET ring. All three
// share one Source contract so the pipeline never knows which is wired.
package capture

import (
	"errors"
	"time"

	"github.com/google/gopacket"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/core"
)

// Capture parameters shared by every source. The game exchanges tens of
// kilobytes per second on a single TCP connection, so a 10 MiB kernel
// buffer absorbs any scheduling hiccup.
const (
	bpfFilter    = "ip and tcp"
	snapLen      = 65535
	bufferBytes  = 10 << 20
	bufferSizeMB = 10 // AF_PACKET ring budget, mirrors bufferBytes
	pollTimeout  = time.Second
)

// ErrReadTimeout reports that no packet arrived within the poll
// interval. The read loop treats it as "check for shutdown, poll
// again"; it never indicates a broken source.
var ErrReadTimeout = errors.New("star-meter: capture read timed out")

// Source yields raw link-layer frames. Open acquires the OS handle and
// is where privilege and driver problems surface; ReadPacket blocks for
// at most the poll interval and returns ErrReadTimeout when idle, io.EOF
// when a finite source is drained. Close is safe after Open failed and
// must only be called once no ReadPacket is in flight.
type Source interface {
	Open() error
	ReadPacket() (data []byte, info gopacket.CaptureInfo, err error)
	LinkType() core.LinkType
	Close() error
}
