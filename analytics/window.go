package analytics

import "gonum.org/v1/gonum/mat"

// SlidingWindow is a fixed-capacity FIFO of normalized amplitude frames.
// It is owned by the consumer goroutine and is not safe for concurrent use.
type SlidingWindow struct {
	windowSize int
	values     []*mat.Dense
	index      int
	count      int
}

func NewSlidingWindow(size int) *SlidingWindow {
	if size < 1 {
		size = 1
	}
	return &SlidingWindow{
		windowSize: size,
		values:     make([]*mat.Dense, size),
	}
}

// Add appends a frame, evicting the oldest one once the window is full.
func (sw *SlidingWindow) Add(frame *mat.Dense) {
	sw.values[sw.index] = frame
	sw.index = (sw.index + 1) % sw.windowSize
	if sw.count < sw.windowSize {
		sw.count++
	}
}

func (sw *SlidingWindow) Len() int {
	return sw.count
}

func (sw *SlidingWindow) Cap() int {
	return sw.windowSize
}

func (sw *SlidingWindow) Reset() {
	for i := range sw.values {
		sw.values[i] = nil
	}
	sw.index = 0
	sw.count = 0
}

// Frames returns the buffered frames oldest first.
func (sw *SlidingWindow) Frames() []*mat.Dense {
	out := make([]*mat.Dense, 0, sw.count)
	start := 0
	if sw.count == sw.windowSize {
		start = sw.index
	}
	for i := 0; i < sw.count; i++ {
		out = append(out, sw.values[(start+i)%sw.windowSize])
	}
	return out
}

// Latest returns the most recently added frame, or nil when empty.
func (sw *SlidingWindow) Latest() *mat.Dense {
	if sw.count == 0 {
		return nil
	}
	return sw.values[(sw.index-1+sw.windowSize)%sw.windowSize]
}
