package pipeline

import "sync/atomic"

// counters are the hot-path throughput counters, atomics so Stats never
// contends with the capture loop.
type counters struct {
	received  atomic.Uint64
	dropped   atomic.Uint64
	processed atomic.Uint64
}

// Stats is a point-in-time view of pipeline throughput, served by
// GET /api/stats.
type Stats struct {
	Received  uint64 `json:"packets_received"`
	Dropped   uint64 `json:"packets_dropped"`
	Processed uint64 `json:"packets_processed"`
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:  p.stats.received.Load(),
		Dropped:   p.stats.dropped.Load(),
		Processed: p.stats.processed.Load(),
	}
}
