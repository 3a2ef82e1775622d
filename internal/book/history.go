package book

// DepthHistory is a fixed-window ring of per-side depth observations used
// by the depth-drop guard. Not safe for concurrent use; each engine owns
// its own.
type DepthHistory struct {
	window int
	bid    []float64
	ask    []float64
}

func NewDepthHistory(window int) *DepthHistory {
	if window < 1 {
		window = 1
	}
	return &DepthHistory{window: window}
}

// Record appends the snapshot's depths, evicting the oldest observation
// once the window is full.
func (h *DepthHistory) Record(s Snapshot) {
	h.bid = push(h.bid, s.BidDepth, h.window)
	h.ask = push(h.ask, s.AskDepth, h.window)
}

func push(buf []float64, v float64, window int) []float64 {
	buf = append(buf, v)
	if len(buf) > window {
		buf = buf[1:]
	}
	return buf
}

// MaxDropPercent returns the largest percentage fall from the window peak to
// the most recent observation, per side. With fewer than two observations
// both are zero.
func (h *DepthHistory) MaxDropPercent() (bidDrop, askDrop float64) {
	return dropPercent(h.bid), dropPercent(h.ask)
}

func dropPercent(buf []float64) float64 {
	if len(buf) < 2 {
		return 0
	}
	peak := buf[0]
	for _, v := range buf[:len(buf)-1] {
		if v > peak {
			peak = v
		}
	}
	if peak <= 0 {
		return 0
	}
	drop := (peak - buf[len(buf)-1]) / peak * 100
	if drop < 0 {
		return 0
	}
	return drop
}
