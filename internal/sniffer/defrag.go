package sniffer

import (
	"sort"
	"time"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/metrics"
)

const fragmentMaxAge = 30 * time.Second

// fragmentKey identifies one fragmented IPv4 datagram.
type fragmentKey struct {
	id       uint16
	src      [4]byte
	dst      [4]byte
	protocol uint8
}

type fragmentPiece struct {
	offset  int
	payload []byte
}

type fragmentEntry struct {
	pieces    []fragmentPiece // in arrival order
	finalSeen bool
	totalLen  int // max(offset+len) over all pieces, valid once finalSeen
	lastTouch time.Time
}

// defragmenter buffers IPv4 fragments until a datagram is complete.
//
// Overlapping fragments are resolved last-writer-wins: pieces are copied
// into the reassembly buffer in arrival order, so a later fragment
// overwrites overlapping bytes of an earlier one. This matches the
// traffic the collector observes; it is not the BSD first-wins policy.
type defragmenter struct {
	entries map[fragmentKey]*fragmentEntry
}

func newDefragmenter() *defragmenter {
	return &defragmenter{entries: make(map[fragmentKey]*fragmentEntry)}
}

// process buffers one fragment and returns the reassembled datagram
// payload once every byte of it has arrived. Callers must route only
// fragmented datagrams here; whole datagrams bypass the defragmenter.
func (d *defragmenter) process(h ipv4Header, payload []byte, ts time.Time) ([]byte, bool) {
	key := fragmentKey{id: h.id, src: h.src, dst: h.dst, protocol: h.protocol}

	entry, ok := d.entries[key]
	if !ok {
		entry = &fragmentEntry{}
		d.entries[key] = entry
		metrics.FragmentsActive.Inc()
	}

	// The capture buffer is reused, keep a copy.
	piece := fragmentPiece{offset: h.fragOffset, payload: append([]byte(nil), payload...)}
	entry.pieces = append(entry.pieces, piece)
	entry.lastTouch = ts

	if end := h.fragOffset + len(payload); end > entry.totalLen {
		entry.totalLen = end
	}
	if !h.moreFragments {
		entry.finalSeen = true
	}

	if !entry.finalSeen || !entry.complete() {
		return nil, false
	}

	out := entry.build()
	delete(d.entries, key)
	metrics.FragmentsActive.Dec()
	return out, true
}

// complete reports whether the pieces cover [0, totalLen) without gaps.
func (e *fragmentEntry) complete() bool {
	sorted := make([]fragmentPiece, len(e.pieces))
	copy(sorted, e.pieces)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].offset < sorted[j].offset })

	covered := 0
	for _, p := range sorted {
		if p.offset > covered {
			return false
		}
		if end := p.offset + len(p.payload); end > covered {
			covered = end
		}
	}
	return covered >= e.totalLen
}

// build copies the pieces into a single buffer in arrival order,
// implementing the last-writer-wins overlap policy.
func (e *fragmentEntry) build() []byte {
	out := make([]byte, e.totalLen)
	for _, p := range e.pieces {
		copy(out[p.offset:p.offset+len(p.payload)], p.payload)
	}
	return out
}

// sweep drops datagrams that have not seen a fragment for 30 s.
func (d *defragmenter) sweep(now time.Time) int {
	evicted := 0
	for key, entry := range d.entries {
		if now.Sub(entry.lastTouch) > fragmentMaxAge {
			delete(d.entries, key)
			evicted++
		}
	}
	if evicted > 0 {
		metrics.FragmentsActive.Sub(float64(evicted))
	}
	return evicted
}

func (d *defragmenter) active() int { return len(d.entries) }
