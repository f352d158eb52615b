package embedding

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/blas/gonum"
)

// Provider maps a batch of texts to unit-norm vectors of a fixed dimension.
// Implementations must be safe for concurrent use.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dims() int
	Name() string
	// Deterministic reports whether the same text always yields the same vector
	// for the lifetime of the process.
	Deterministic() bool
}

// ErrUnavailable is returned when the backend refuses work (open breaker, saturated pool).
var ErrUnavailable = errors.New("embedding backend unavailable")

var blasEngine = gonum.Implementation{}

// Normalize scales v to unit L2 norm in place. Zero vectors are left untouched.
func Normalize(v []float32) {
	if len(v) == 0 {
		return
	}
	n := blasEngine.Snrm2(len(v), v, 1)
	if n == 0 {
		return
	}
	blasEngine.Sscal(len(v), 1/n, v, 1)
}

func checkShape(name string, texts []string, rows [][]float32, dims int) error {
	if len(rows) != len(texts) {
		return fmt.Errorf("%s: got %d vectors for %d texts", name, len(rows), len(texts))
	}
	for i, r := range rows {
		if len(r) != dims {
			return fmt.Errorf("%s: vector %d has %d dims, want %d", name, i, len(r), dims)
		}
	}
	return nil
}
