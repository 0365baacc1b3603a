package device

import "github.com/chewxy/math32"

// ApproxEqual reports whether a and b have the same length and differ by no
// more than eps at every position, the same epsilon-threshold style the
// wider ecosystem uses for float32 comparisons (e.g. kd_tree nearest-
// neighbor pruning) rather than going through float64 for the comparison.
func ApproxEqual(a, b []float32, eps float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math32.Abs(a[i]-b[i]) > eps {
			return false
		}
	}
	return true
}
