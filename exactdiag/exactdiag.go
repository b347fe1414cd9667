// Package exactdiag converts small density operators into dense matrices, for validating matrix product computations.
//
// Dense matrices are indexed by the bits of the qubits, with qubit 1 being the most significant bit and 0 denoting spin up.
// Vectorized density operators are indexed by the super-spin labels of the qubits in base 4, again with qubit 1 being the most significant digit.
package exactdiag

import (
	"fmt"
	"math/cmplx"
	"slices"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/haggaila/lindbladmpo/pauli"
)

// contract multiplies a chain of tensors whose first and last axes are bonds.
// The result has a leading and trailing axis of dimension 1, with the remaining axes of all sites in between.
func contract(ms []*tensor.Dense) *tensor.Dense {
	t := copyOf(ms[0])
	for _, m := range ms[1:] {
		t = tensor.Contract(tensor.Zeros(1), t, m, [][2]int{{len(t.Shape()) - 1, 0}})
	}
	return t
}

func copyOf(a *tensor.Dense) *tensor.Dense {
	shape := a.Shape()
	return tensor.Zeros(shape...).Set(make([]int, len(shape)), a)
}

func pow(base, n int) int {
	p := 1
	for range n {
		p *= base
	}
	return p
}

// Vector returns the components of the vectorized density operator rho.
func Vector(rho []*tensor.Dense) []complex128 {
	n := len(rho)
	t := contract(rho)
	v := make([]complex128, pow(pauli.Dim, n))
	for digits, x := range t.All() {
		var idx int
		for _, d := range digits[1 : n+1] {
			idx = idx*pauli.Dim + d
		}
		v[idx] = complex128(x)
	}
	return v
}

// DensityMatrix returns the dense matrix of the vectorized density operator rho.
func DensityMatrix(rho []*tensor.Dense) *mat.CDense {
	return Devectorize(Vector(rho), len(rho))
}

// PureDensityMatrix returns |psi><psi| of the matrix product state psi.
func PureDensityMatrix(psi []*tensor.Dense) *mat.CDense {
	n := len(psi)
	t := contract(psi)
	v := make([]complex128, pow(2, n))
	for digits, x := range t.All() {
		var idx int
		for _, d := range digits[1 : n+1] {
			idx = idx*2 + d
		}
		v[idx] = complex128(x)
	}

	m := mat.NewCDense(len(v), len(v), nil)
	for a, va := range v {
		for b, vb := range v {
			m.Set(a, b, va*cmplx.Conj(vb))
		}
	}
	return m
}

// index returns the index of |a><b| in a vectorized density operator of n qubits.
func index(a, b, n int) int {
	var idx int
	for i := n - 1; i >= 0; i-- {
		ket, bra := (a>>i)&1, (b>>i)&1
		idx = idx*pauli.Dim + pauli.Label(ket, bra)
	}
	return idx
}

// Devectorize returns the dense matrix of the vectorized density operator v of n qubits.
func Devectorize(v []complex128, n int) *mat.CDense {
	d := pow(2, n)
	m := mat.NewCDense(d, d, nil)
	for a := range d {
		for b := range d {
			m.Set(a, b, v[index(a, b, n)])
		}
	}
	return m
}

// Vectorize returns the vectorized form of the dense density matrix m of n qubits.
func Vectorize(m *mat.CDense, n int) []complex128 {
	d := pow(2, n)
	v := make([]complex128, pow(pauli.Dim, n))
	for a := range d {
		for b := range d {
			v[index(a, b, n)] = m.At(a, b)
		}
	}
	return v
}

// OperatorMatrix returns the dense matrix of the matrix product operator ws, whose tensors have axes {left, right, up, down}.
func OperatorMatrix(ws []*tensor.Dense) *mat.CDense {
	n := len(ws)
	// Move the right axis last, so that ws can be contracted as a chain.
	chain := make([]*tensor.Dense, 0, n)
	for _, w := range ws {
		chain = append(chain, copyOf(w.Transpose(0, 2, 3, 1)))
	}
	t := contract(chain)

	physD := ws[0].Shape()[2]
	d := pow(physD, n)
	m := mat.NewCDense(d, d, nil)
	for digits, x := range t.All() {
		var row, col int
		for i := range n {
			row = row*physD + digits[1+2*i]
			col = col*physD + digits[2+2*i]
		}
		m.Set(row, col, complex128(x))
	}
	return m
}

// Apply returns m @ v.
func Apply(m *mat.CDense, v []complex128) []complex128 {
	r, c := m.Dims()
	if c != len(v) {
		panic(fmt.Sprintf("%d %d", c, len(v)))
	}
	mv := make([]complex128, r)
	for i := range r {
		for j, vj := range v {
			mv[i] += m.At(i, j) * vj
		}
	}
	return mv
}

// Trace returns the trace of m.
func Trace(m *mat.CDense) complex128 {
	r, _ := m.Dims()
	var tr complex128
	for i := range r {
		tr += m.At(i, i)
	}
	return tr
}

// HermiticityError returns the largest absolute value of m - m.H.
func HermiticityError(m *mat.CDense) float64 {
	r, c := m.Dims()
	var e float64
	for i := range r {
		for j := range c {
			e = max(e, cmplx.Abs(m.At(i, j)-cmplx.Conj(m.At(j, i))))
		}
	}
	return e
}

// Purity returns Tr(m @ m).
func Purity(m *mat.CDense) complex128 {
	r, c := m.Dims()
	var p complex128
	for i := range r {
		for j := range c {
			p += m.At(i, j) * m.At(j, i)
		}
	}
	return p
}

// Spectrum returns the eigenvalues of the Hermitian part of m in ascending order.
// The complex Hermitian matrix A + iB is embedded in the real symmetric matrix [[A, -B], [B, A]], whose eigenvalues are those of A + iB, each repeated twice.
func Spectrum(m *mat.CDense) ([]float64, error) {
	d, _ := m.Dims()
	s := mat.NewSymDense(2*d, nil)
	for i := range d {
		for j := i; j < d; j++ {
			h := (m.At(i, j) + cmplx.Conj(m.At(j, i))) / 2
			s.SetSym(i, j, real(h))
			s.SetSym(d+i, d+j, real(h))
			s.SetSym(i, d+j, -imag(h))
			s.SetSym(j, d+i, imag(h))
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(s, false); !ok {
		return nil, errors.Errorf("eigen decomposition failed %d", d)
	}
	vals := eig.Values(nil)
	slices.Sort(vals)

	spectrum := make([]float64, 0, d)
	for i := 0; i < len(vals); i += 2 {
		spectrum = append(spectrum, vals[i])
	}
	return spectrum, nil
}

// Expect returns Tr(m O1 O2 ...) where the super-operators ops act on the 1-based sites.
func Expect(m *mat.CDense, ops []string, sites []int) (complex128, error) {
	if len(ops) != len(sites) {
		return 0, errors.Errorf("%d %d", len(ops), len(sites))
	}
	d, _ := m.Dims()
	n := 0
	for pow(2, n) < d {
		n++
	}

	v := Vectorize(m, n)
	for i, name := range ops {
		if sites[i] < 1 || sites[i] > n {
			return 0, errors.Errorf("site %d n %d", sites[i], n)
		}
		op, err := pauli.Matrix(name)
		if err != nil {
			return 0, errors.Wrap(err, "")
		}
		v = applyLocal(v, op, sites[i]-1, n)
	}
	return Trace(Devectorize(v, n)), nil
}

// applyLocal applies the 4x4 matrix op to the 0-based site of the vectorized density operator v.
func applyLocal(v []complex128, op *tensor.Dense, site, n int) []complex128 {
	stride := pow(pauli.Dim, n-1-site)
	out := make([]complex128, len(v))
	for idx, x := range v {
		if x == 0 {
			continue
		}
		digit := (idx / stride) % pauli.Dim
		base := idx - digit*stride
		for o := range pauli.Dim {
			out[base+o*stride] += complex128(op.At(o, digit)) * x
		}
	}
	return out
}
