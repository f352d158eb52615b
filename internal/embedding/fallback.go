package embedding

import (
	"context"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/stat/distuv"
)

const DefaultDims = 384

// Fallback derives a pseudo-embedding from a hash of the text: a 32-bit seed
// drives D standard normal draws which are then L2-normalized. Identical texts
// always map to identical vectors; it carries no semantic signal.
type Fallback struct {
	dims int
}

func NewFallback(dims int) *Fallback {
	if dims <= 0 {
		dims = DefaultDims
	}
	return &Fallback{dims: dims}
}

func (f *Fallback) Name() string        { return "fallback" }
func (f *Fallback) Dims() int           { return f.dims }
func (f *Fallback) Deterministic() bool { return true }

func (f *Fallback) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = f.vector(t)
	}
	return out, nil
}

func Seed(text string) uint32 {
	return uint32(xxhash.Sum64String(text))
}

func (f *Fallback) vector(text string) []float32 {
	seed := uint64(Seed(text))
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(seed, seed)}
	v := make([]float32, f.dims)
	for i := range v {
		v[i] = float32(normal.Rand())
	}
	Normalize(v)
	return v
}
