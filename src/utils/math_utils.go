package utils

// ClampFloat bounds v to the [lo, hi] interval.
func ClampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
