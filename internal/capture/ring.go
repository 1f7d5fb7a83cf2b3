package capture

import "fmt"

// ringLayout derives AF_PACKET PACKET_MMAP ring dimensions from a
// memory budget. The kernel requires frameSize aligned to
// TPACKET_ALIGNMENT, blockSize a multiple of the page size, and
// blockSize divisible by frameSize; blockSize*numBlocks approximates
// the requested budget from below.
func ringLayout(budgetMB, snap, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	const alignment = 16 // TPACKET_ALIGNMENT
	const headerLen = 52 // TPACKET3_HDRLEN, rounded up
	const maxBlock = 4 * 1024 * 1024

	if budgetMB <= 0 {
		return 0, 0, 0, fmt.Errorf("ring budget must be positive, got %d MB", budgetMB)
	}
	if snap <= 0 {
		return 0, 0, 0, fmt.Errorf("snap length must be positive, got %d", snap)
	}
	if pageSize <= 0 || pageSize%alignment != 0 {
		return 0, 0, 0, fmt.Errorf("page size must be a positive multiple of %d, got %d", alignment, pageSize)
	}

	need := headerLen + snap
	if need <= pageSize {
		// Small frames: round up to a power of two so whole frames tile
		// a page exactly (pages are powers of two on every platform we
		// run on; if not, one frame per page still satisfies the
		// kernel).
		frameSize = nextPow2(need)
		if frameSize < alignment {
			frameSize = alignment
		}
		if pageSize%frameSize != 0 {
			frameSize = pageSize
		}
	} else {
		// Large frames: round up to whole pages, then blocks built from
		// whole frames are page aligned for free.
		frameSize = ((need + pageSize - 1) / pageSize) * pageSize
	}

	blockSize = (maxBlock / frameSize) * frameSize
	if blockSize < frameSize {
		blockSize = frameSize
	}
	if blockSize%pageSize != 0 {
		// Only reachable in the small-frame case, where frameSize
		// divides the page; grow to one page worth of frames.
		blockSize = pageSize * (blockSize/pageSize + 1)
	}

	targetBytes := budgetMB * 1024 * 1024
	numBlocks = targetBytes / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}

func nextPow2(v int) int {
	p := 1
	for p < v {
		p <<= 1
	}
	return p
}
