// Package indicator provides stateless technical indicator computations.
// Every function returns a slice aligned one-to-one with its input, with
// leading NaN values where the warm-up period leaves the indicator undefined.
package indicator

import "math"

// warmup fills the first n elements of out with NaN.
func warmup(out []float64, n int) {
	if n > len(out) {
		n = len(out)
	}

	for i := 0; i < n; i++ {
		out[i] = math.NaN()
	}
}
