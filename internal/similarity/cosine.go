package similarity

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas/gonum"
)

// Epsilon keeps Cosine finite for zero vectors.
const Epsilon = 1e-9

var ErrDimensionMismatch = errors.New("vectors must have the same length")

var blasEngine = gonum.Implementation{}

// Cosine returns (a·b) / (‖a‖·‖b‖ + Epsilon).
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, nil
	}
	dot := float64(blasEngine.Sdot(len(a), a, 1, b, 1))
	na := float64(blasEngine.Snrm2(len(a), a, 1))
	nb := float64(blasEngine.Snrm2(len(b), b, 1))
	s := dot / (na*nb + Epsilon)
	if math.IsNaN(s) {
		return 0, nil
	}
	return s, nil
}
