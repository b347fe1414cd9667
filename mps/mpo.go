package mps

import (
	"fmt"

	"github.com/fumin/tensor"
)

// Uniform returns an operator of n sites built from the same bulk tensor w.
// w is lower triangular in its bond indices, so that the first site takes the last row of w and the last site takes the first column.
// See Section 6.1 Matrix product operators, Ulrich Schollwock.
func Uniform(w *tensor.Dense, n int) []*tensor.Dense {
	s := w.Shape()
	d0, d1, d2, d3 := s[mpoLeftAxis], s[mpoRightAxis], s[mpoUpAxis], s[mpoDownAxis]
	if n == 1 {
		return []*tensor.Dense{resetCopy(tensor.Zeros(1), w.Slice([][2]int{{d0 - 1, d0}, {0, 1}, {0, d2}, {0, d3}}))}
	}

	mpo := make([]*tensor.Dense, 0, n)
	mpo = append(mpo, resetCopy(tensor.Zeros(1), w.Slice([][2]int{{d0 - 1, d0}, {0, d1}, {0, d2}, {0, d3}})))
	for range n - 2 {
		mpo = append(mpo, resetCopy(tensor.Zeros(1), w))
	}
	mpo = append(mpo, resetCopy(tensor.Zeros(1), w.Slice([][2]int{{0, d0}, {0, 1}, {0, d2}, {0, d3}})))
	return mpo
}

// ApplyMPO returns the state ws @ ms.
// The bond dimensions of the result are the products of those of ws and ms.
// See Section 5.1 Applying an MPO to an MPS, Ulrich Schollwock.
func ApplyMPO(ws, ms []*tensor.Dense) []*tensor.Dense {
	if len(ws) != len(ms) {
		panic(fmt.Sprintf("%d %d", len(ws), len(ms)))
	}

	out := make([]*tensor.Dense, 0, len(ms))
	for i, w := range ws {
		m := ms[i]
		wShape, mShape := w.Shape(), m.Shape()
		dl := wShape[mpoLeftAxis] * mShape[mpsLeftAxis]
		dUp := wShape[mpoUpAxis]
		dr := wShape[mpoRightAxis] * mShape[mpsRightAxis]

		// wm is of shape {mpoLeft, mpoRight, mpoUp, mpsLeft, mpsRight}.
		wm := tensor.Contract(tensor.Zeros(1), w, m, [][2]int{{mpoDownAxis, mpsUpAxis}})

		// o is of shape {mpoLeft, mpsLeft, mpoUp, mpoRight, mpsRight}.
		o := resetCopy(tensor.Zeros(1), wm.Transpose(0, 3, 2, 1, 4))
		out = append(out, o.Reshape(dl, dUp, dr))
	}
	return out
}

// AdjointProduct returns the operator ws.H @ ws.
func AdjointProduct(ws []*tensor.Dense) []*tensor.Dense {
	out := make([]*tensor.Dense, 0, len(ws))
	for _, w := range ws {
		s := w.Shape()
		dl, dr := s[mpoLeftAxis]*s[mpoLeftAxis], s[mpoRightAxis]*s[mpoRightAxis]
		dDown := s[mpoDownAxis]

		// ww is of shape {left.conj, right.conj, down.conj, left, right, down}.
		ww := tensor.Contract(tensor.Zeros(1), w.Conj(), w, [][2]int{{mpoUpAxis, mpoUpAxis}})

		// o is of shape {left.conj, left, right.conj, right, down.conj, down}.
		o := resetCopy(tensor.Zeros(1), ww.Transpose(0, 3, 1, 4, 2, 5))
		out = append(out, o.Reshape(dl, dr, dDown, dDown))
	}
	return out
}
