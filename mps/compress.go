package mps

import (
	"fmt"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"
)

// CompressOptions are options for truncating the bond dimensions of a matrix product state.
type CompressOptions struct {
	maxDim int
	cutoff float32
}

// NewCompressOptions returns the default compression options.
func NewCompressOptions() CompressOptions {
	opt := CompressOptions{}
	opt.maxDim = 64
	opt.cutoff = 1e-8
	return opt
}

// MaxDim sets the maximum bond dimension.
func (opt CompressOptions) MaxDim(d int) CompressOptions {
	opt.maxDim = d
	return opt
}

// Cutoff sets the maximum discarded weight, which is the sum of the squares of the discarded singular values relative to the sum of all squares.
func (opt CompressOptions) Cutoff(c float32) CompressOptions {
	opt.cutoff = c
	return opt
}

// Clone returns a deep copy of ms.
func Clone(ms []*tensor.Dense) []*tensor.Dense {
	c := make([]*tensor.Dense, 0, len(ms))
	for _, m := range ms {
		c = append(c, resetCopy(tensor.Zeros(1), m))
	}
	return c
}

// Scale multiplies the state ms by c in place.
func Scale(ms []*tensor.Dense, c complex64) []*tensor.Dense {
	ms[0].Mul(c)
	return ms
}

// Add returns the exact sum x + y.
// The bond dimensions of the sum are the sums of those of x and y.
// See Section 4.3 Adding two matrix product states, Ulrich Schollwock.
func Add(x, y []*tensor.Dense) []*tensor.Dense {
	if len(x) != len(y) {
		panic(fmt.Sprintf("%d %d", len(x), len(y)))
	}
	for i := range x {
		if x[i].Shape()[mpsUpAxis] != y[i].Shape()[mpsUpAxis] {
			panic(fmt.Sprintf("%d %#v %#v", i, x[i].Shape(), y[i].Shape()))
		}
	}

	sum := make([]*tensor.Dense, 0, len(x))
	if len(x) == 1 {
		s := resetCopy(tensor.Zeros(1), x[0])
		s.Add(1, y[0])
		return append(sum, s)
	}

	for i := range x {
		xs, ys := x[i].Shape(), y[i].Shape()
		physD := xs[mpsUpAxis]

		var s *tensor.Dense
		var yStart []int
		switch i {
		case 0:
			s = tensor.Zeros(1, physD, xs[mpsRightAxis]+ys[mpsRightAxis])
			yStart = []int{0, 0, xs[mpsRightAxis]}
		case len(x) - 1:
			s = tensor.Zeros(xs[mpsLeftAxis]+ys[mpsLeftAxis], physD, 1)
			yStart = []int{xs[mpsLeftAxis], 0, 0}
		default:
			s = tensor.Zeros(xs[mpsLeftAxis]+ys[mpsLeftAxis], physD, xs[mpsRightAxis]+ys[mpsRightAxis])
			yStart = []int{xs[mpsLeftAxis], 0, xs[mpsRightAxis]}
		}
		s.Set([]int{0, 0, 0}, x[i])
		s.Set(yStart, y[i])

		sum = append(sum, s)
	}
	return sum
}

// BondDims returns the bond dimensions between consecutive sites.
func BondDims(ms []*tensor.Dense) []int {
	dims := make([]int, 0, len(ms))
	for _, m := range ms[:len(ms)-1] {
		dims = append(dims, m.Shape()[mpsRightAxis])
	}
	return dims
}

// MaxBondDim returns the largest bond dimension of ms.
func MaxBondDim(ms []*tensor.Dense) int {
	d := 1
	for _, b := range BondDims(ms) {
		d = max(d, b)
	}
	return d
}

// Compress truncates the bond dimensions of ms in place.
// The state is first left normalized, after which a right to left sweep of singular value decompositions discards the smallest singular values.
// The returned value is the largest discarded weight over all bonds.
// See Section 4.5.1 Compressing a matrix product state by SVD, Ulrich Schollwock.
func Compress(ms []*tensor.Dense, options ...CompressOptions) (float32, error) {
	opt := NewCompressOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	if opt.maxDim < 1 {
		return 0, errors.Errorf("%d", opt.maxDim)
	}
	if len(ms) == 1 {
		return 0, nil
	}
	for _, m := range ms {
		if m.FrobeniusNorm() == 0 {
			setZero(ms)
			return 0, nil
		}
	}

	var bufs [7]*tensor.Dense
	for i := range len(bufs) {
		bufs[i] = tensor.Zeros(1)
	}

	leftNormalizeAll(ms, bufs[:3])
	var discarded float32
	for i := len(ms) - 1; i >= 1; i-- {
		w, err := truncate(ms, i, opt, bufs)
		if err != nil {
			return 0, errors.Wrap(err, fmt.Sprintf("%d", i))
		}
		discarded = max(discarded, w)
	}
	return discarded, nil
}

// setZero replaces ms with the zero state of bond dimension 1.
func setZero(ms []*tensor.Dense) {
	for i, m := range ms {
		ms[i] = tensor.Zeros(1, m.Shape()[mpsUpAxis], 1)
	}
}

// truncate decomposes ms[i] = u @ s @ v.H, keeps the largest singular values, sets ms[i] = v.H, and multiplies u @ s into ms[i-1].
func truncate(ms []*tensor.Dense, i int, opt CompressOptions, bufs [7]*tensor.Dense) (float32, error) {
	shape := ms[i].Shape()
	dLeft, dUp, dRight := shape[mpsLeftAxis], shape[mpsUpAxis], shape[mpsRightAxis]

	a := resetCopy(bufs[0], ms[i]).Reshape(dLeft, dUp*dRight)
	u, v := bufs[1], bufs[2]
	s, err := tensor.SVD(u, v, a, [3]*tensor.Dense{bufs[3], bufs[4], bufs[5]})
	if err != nil {
		return 0, errors.Wrap(err, fmt.Sprintf("%#v", a.Shape()))
	}
	k, discarded := keep(s, opt)

	// us = u[:, :k] @ s[:k, :k].
	us := resetCopy(bufs[3], u.Slice([][2]int{{0, u.Shape()[0]}, {0, k}}))
	for j := range k {
		sj := s.At(j, j)
		for r := range us.Shape()[0] {
			us.SetAt([]int{r, j}, us.At(r, j)*sj)
		}
	}
	resetCopy(ms[i-1], tensor.Contract(bufs[4], ms[i-1], us, [][2]int{{mpsRightAxis, 0}}))

	vh := v.Slice([][2]int{{0, v.Shape()[0]}, {0, k}}).H()
	ms[i] = resetCopy(ms[i], vh).Reshape(k, dUp, dRight)

	return discarded, nil
}

// keep returns the number of singular values to keep, as well as the discarded weight.
func keep(s *tensor.Dense, opt CompressOptions) (int, float32) {
	n := s.Shape()[0]
	weights := make([]float32, n)
	var total float32
	for j := range n {
		sj := real(s.At(j, j))
		weights[j] = sj * sj
		total += weights[j]
	}
	if total == 0 {
		return 1, 0
	}

	// tail[k] is the weight of singular values k, k+1, ...
	tail := make([]float32, n+1)
	for j := n - 1; j >= 0; j-- {
		tail[j] = tail[j+1] + weights[j]
	}

	k := n
	for j := 1; j <= n; j++ {
		if tail[j]/total <= opt.cutoff {
			k = j
			break
		}
	}
	k = min(k, opt.maxDim)
	return k, tail[k] / total
}
