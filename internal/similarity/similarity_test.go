package similarity

import (
	"errors"
	"math"
	"testing"
)

func approx(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestCosine(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"scale invariant", []float32{1, 1}, []float32{5, 5}, 1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tc := range cases {
		got, err := Cosine(tc.a, tc.b)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if !approx(got, tc.want, 1e-6) {
			t.Fatalf("%s: want=%v got=%v", tc.name, tc.want, got)
		}
	}
}

func TestCosineDimensionMismatch(t *testing.T) {
	_, err := Cosine([]float32{1, 2}, []float32{1})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestRankStableDescending(t *testing.T) {
	q := []float32{1, 0}
	cands := [][]float32{
		{0, 1},   // 0
		{1, 0},   // 1
		{1, 1},   // ~0.707
		{2, 0},   // 1, ties with index 1
		{-1, 0},  // -1
	}
	ranked, err := Rank(q, cands)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	wantOrder := []int{1, 3, 2, 0, 4}
	for i, w := range wantOrder {
		if ranked[i].Index != w {
			t.Fatalf("rank[%d]: want index %d got %d (%+v)", i, w, ranked[i].Index, ranked)
		}
	}
}

func TestSelect(t *testing.T) {
	ranked := []Scored{{0, 0.99}, {1, 0.95}, {2, 0.9}, {3, 0.88}, {4, 0.5}}

	got := Select(ranked, 0.87, 3)
	if len(got) != 3 || got[0].Index != 0 || got[2].Index != 2 {
		t.Fatalf("top-3 cap: unexpected %+v", got)
	}

	got = Select(ranked, 0.92, 3)
	if len(got) != 2 {
		t.Fatalf("threshold stop: want 2 got %d", len(got))
	}

	if got := Select(ranked, 1.01, 3); len(got) != 0 {
		t.Fatalf("threshold above 1 must select nothing, got %+v", got)
	}
	if got := Select(ranked, 0, 0); len(got) != 0 {
		t.Fatalf("k=0 must select nothing")
	}
	if got := Select(nil, 0, 3); len(got) != 0 {
		t.Fatalf("empty input must select nothing")
	}
}
