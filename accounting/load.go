package accounting

// LoadPercent is busy time over elapsed time as a percentage.
// It returns 0 when nothing has elapsed yet. The result is not clamped:
// overlapping accounting windows can push it above 100.
func LoadPercent(busy, elapsed uint64) float64 {
	if elapsed == 0 {
		return 0
	}
	return float64(busy) / float64(elapsed) * 100
}

// Snapshot is the load estimate as of the most recent recompute.
type Snapshot struct {
	Elapsed     uint64
	Busy        uint64
	LoadPercent float64
}
