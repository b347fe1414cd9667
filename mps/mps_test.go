package mps

import (
	"fmt"
	"math/cmplx"
	"slices"
	"testing"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"
)

var (
	zero = [][]complex64{
		{0, 0},
		{0, 0},
	}
	identity = [][]complex64{
		{1, 0},
		{0, 1},
	}
	pauliX = [][]complex64{
		{0, 1},
		{1, 0},
	}
	pauliZ = [][]complex64{
		{1, 0},
		{0, -1},
	}
)

func ising(n int, h complex64) []*tensor.Dense {
	mul := func(c complex64, x [][]complex64) [][]complex64 {
		return tensor.T2(x).Mul(c).ToSlice2()
	}
	w := tensor.T4([][][][]complex64{
		{identity, zero, zero},
		{pauliZ, zero, zero},
		{mul(-h, pauliX), mul(-1, pauliZ), identity},
	})
	return Uniform(w, n)
}

func randState(physD int, bondDims ...int) []*tensor.Dense {
	dims := append(append([]int{1}, bondDims...), 1)
	ms := make([]*tensor.Dense, 0, len(dims)-1)
	for i := range len(dims) - 1 {
		ms = append(ms, randTensor(dims[i], physD, dims[i+1]))
	}
	return ms
}

func newBufs() [2]*tensor.Dense {
	return [2]*tensor.Dense{tensor.Zeros(1), tensor.Zeros(1)}
}

func newFs(n int) []*tensor.Dense {
	fs := make([]*tensor.Dense, 0, n)
	for range n {
		fs = append(fs, tensor.Zeros(1))
	}
	return fs
}

func closeTo(a, b complex64, tol float64) error {
	diff := cmplx.Abs(complex128(a - b))
	if diff > tol*max(1, cmplx.Abs(complex128(b))) {
		return errors.Errorf("%v %v %g", a, b, diff)
	}
	return nil
}

func TestNewMPS(t *testing.T) {
	t.Parallel()
	tests := []struct {
		shape []int
	}{
		{shape: []int{2, 2}},
		{shape: []int{2, 2, 2}},
		{shape: []int{4, 4, 4}},
		{shape: []int{2, 3, 2, 2}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%#v", test.shape), func(t *testing.T) {
			t.Parallel()
			state := randTensor(test.shape...)
			norm := state.FrobeniusNorm()

			ms := NewMPS(state, newBufs())
			if len(ms) != len(test.shape) {
				t.Fatalf("%d", len(ms))
			}
			for i, m := range ms {
				if m.Shape()[mpsUpAxis] != test.shape[i] {
					t.Fatalf("%d %#v", i, m.Shape())
				}
			}
			ip := InnerProduct(ms, ms, newBufs())
			if err := closeTo(ip, complex(norm*norm, 0), 1e-4); err != nil {
				t.Fatalf("%+v", err)
			}
		})
	}
}

func TestAdd(t *testing.T) {
	t.Parallel()
	tests := []struct {
		physD int
		bonds []int
	}{
		{physD: 4, bonds: []int{}},
		{physD: 2, bonds: []int{2}},
		{physD: 4, bonds: []int{3, 5, 2}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d %#v", test.physD, test.bonds), func(t *testing.T) {
			t.Parallel()
			x := randState(test.physD, test.bonds...)
			y := randState(test.physD, test.bonds...)
			z := Add(x, y)

			bufs := newBufs()
			xx := InnerProduct(x, x, bufs)
			yy := InnerProduct(y, y, bufs)
			xy := InnerProduct(x, y, bufs)
			yx := InnerProduct(y, x, bufs)
			if err := closeTo(InnerProduct(z, z, bufs), xx+yy+xy+yx, 1e-4); err != nil {
				t.Fatalf("%+v", err)
			}
			if err := closeTo(InnerProduct(x, z, bufs), xx+xy, 1e-4); err != nil {
				t.Fatalf("%+v", err)
			}
			for i, d := range BondDims(z) {
				if d != 2*test.bonds[i] {
					t.Fatalf("%d %d", i, d)
				}
			}
		})
	}
}

func TestCompress(t *testing.T) {
	t.Parallel()
	tests := []struct {
		bonds []int
	}{
		{bonds: []int{}},
		{bonds: []int{3}},
		{bonds: []int{2, 4, 3}},
		{bonds: []int{4, 8, 8, 4}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%#v", test.bonds), func(t *testing.T) {
			t.Parallel()
			const physD = 4
			x := randState(physD, test.bonds...)
			bufs := newBufs()
			xx := InnerProduct(x, x, bufs)

			// x + x has twice the bond dimension, but the same rank as x.
			y := Add(x, x)
			discarded, err := Compress(y)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if discarded > 1e-5 {
				t.Fatalf("%f", discarded)
			}
			for i, d := range BondDims(y) {
				if d > test.bonds[i] {
					t.Fatalf("%d %d %#v", i, d, BondDims(y))
				}
			}
			if err := closeTo(InnerProduct(y, y, bufs), 4*xx, 1e-3); err != nil {
				t.Fatalf("%+v", err)
			}
			if err := closeTo(InnerProduct(x, y, bufs), 2*xx, 1e-3); err != nil {
				t.Fatalf("%+v", err)
			}
		})
	}
}

func TestCompressMaxDim(t *testing.T) {
	t.Parallel()
	tests := []struct {
		maxDim int
	}{
		{maxDim: 1},
		{maxDim: 2},
		{maxDim: 3},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d", test.maxDim), func(t *testing.T) {
			t.Parallel()
			x := randState(4, 4, 6, 4)
			if _, err := Compress(x, NewCompressOptions().MaxDim(test.maxDim)); err != nil {
				t.Fatalf("%+v", err)
			}
			if d := MaxBondDim(x); d != test.maxDim {
				t.Fatalf("%d %#v", d, BondDims(x))
			}
		})
	}

	if _, err := Compress(randState(2, 2), NewCompressOptions().MaxDim(0)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCompressZero(t *testing.T) {
	t.Parallel()
	x := randState(4, 4, 3, 4)
	x[1].Mul(0)
	discarded, err := Compress(x)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if discarded != 0 {
		t.Fatalf("%f", discarded)
	}
	for i, m := range x {
		if !slices.Equal(m.Shape(), []int{1, 4, 1}) {
			t.Fatalf("%d %#v", i, m.Shape())
		}
		if m.FrobeniusNorm() != 0 {
			t.Fatalf("%d %v", i, m)
		}
	}
}

func TestApplyMPO(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n int
		h complex64
	}{
		{n: 2, h: 0.5},
		{n: 4, h: 1.3},
		{n: 5, h: 0.2 + 0.7i},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d %v", test.n, test.h), func(t *testing.T) {
			t.Parallel()
			mpo := ising(test.n, test.h)
			bonds := make([]int, test.n-1)
			for i := range bonds {
				bonds[i] = 2
			}
			x := randState(2, bonds...)

			bufs := newBufs()
			expected := LExpressions(newFs(test.n), mpo, x, bufs)
			wx := ApplyMPO(mpo, x)
			if err := closeTo(InnerProduct(x, wx, bufs), expected, 1e-4); err != nil {
				t.Fatalf("%+v", err)
			}
			for i, d := range BondDims(wx) {
				if d != 3*bonds[i] {
					t.Fatalf("%d %d", i, d)
				}
			}

			// <x|W.H W|x> is the squared norm of W|x>.
			wwx := LExpressions(newFs(test.n), AdjointProduct(mpo), x, bufs)
			if err := closeTo(wwx, InnerProduct(wx, wx, bufs), 1e-4); err != nil {
				t.Fatalf("%+v", err)
			}
		})
	}
}

func TestCloneScale(t *testing.T) {
	t.Parallel()
	x := randState(4, 3, 3)
	y := Scale(Clone(x), 2i)
	bufs := newBufs()
	if err := closeTo(InnerProduct(x, y, bufs), 2i*InnerProduct(x, x, bufs), 1e-5); err != nil {
		t.Fatalf("%+v", err)
	}
	if err := closeTo(InnerProduct(y, y, bufs), 4*InnerProduct(x, x, bufs), 1e-5); err != nil {
		t.Fatalf("%+v", err)
	}
}
