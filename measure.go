package lindblad

import (
	"fmt"
	"math/cmplx"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"

	"github.com/haggaila/lindbladmpo/mps"
	"github.com/haggaila/lindbladmpo/pauli"
)

// Trace returns the trace of rho, given the trace reference identity.
func Trace(identity, rho []*tensor.Dense) complex64 {
	return innerProduct(identity, rho)
}

// Purity returns Tr(rho.H rho), which equals Tr(rho^2) for Hermitian rho.
func Purity(rho []*tensor.Dense) complex64 {
	return innerProduct(rho, rho)
}

// Expect returns Tr(rho O1 O2 ...), where each operator ops[i] acts on the 1-based site sites[i].
// The operators are applied in the given order to a copy of rho, which is itself left unchanged.
func Expect(identity, rho []*tensor.Dense, ops []string, sites []int) (complex64, error) {
	if len(ops) != len(sites) {
		return 0, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("%d %d", len(ops), len(sites)))
	}
	ms := make([]*tensor.Dense, 0, len(ops))
	for i, name := range ops {
		if err := checkSite(sites[i], len(rho)); err != nil {
			return 0, errors.Wrap(err, "")
		}
		m, err := pauli.Matrix(name)
		if err != nil {
			return 0, errors.Wrap(err, "")
		}
		ms = append(ms, m)
	}

	work := mps.Clone(rho)
	for i, m := range ms {
		applyLocal(work, m, sites[i]-1)
	}
	return Trace(identity, work), nil
}

// applyLocal multiplies the local matrix m into site i of rho.
func applyLocal(rho []*tensor.Dense, m *tensor.Dense, i int) {
	// mr is of shape {up, left, right}.
	mr := tensor.Contract(tensor.Zeros(1), m, rho[i], [][2]int{{1, upAxis}})
	copyTo(rho[i], mr.Transpose(1, 0, 2))
}

func copyTo(dst, src *tensor.Dense) *tensor.Dense {
	shape := src.Shape()
	zeroDigit := make([]int, len(shape))
	dst.Reset(shape...).Set(zeroDigit, src)
	return dst
}

// NormalizeTrace rescales rho in place to unit trace.
func NormalizeTrace(identity, rho []*tensor.Dense) error {
	tr := Trace(identity, rho)
	if cmplx.Abs(complex128(tr)) < 1e-30 {
		return errors.Errorf("zero trace %v", tr)
	}
	mps.Scale(rho, 1/tr)
	return nil
}
