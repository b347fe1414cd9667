package pauli

import (
	"fmt"
	"testing"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"
)

// ketBra returns the vectorized |ket><bra|.
func ketBra(ket, bra int) *tensor.Dense {
	v := tensor.Zeros(Dim)
	v.SetAt([]int{Label(ket, bra)}, 1)
	return v
}

// pauliMatrices are the ordinary 2x2 matrices in the basis {up, down}.
var pauliMatrices = map[string][][]complex64{
	"z":  {{1, 0}, {0, -1}},
	"x":  {{0, 1}, {1, 0}},
	"y":  {{0, -1i}, {1i, 0}},
	"+":  {{0, 1}, {0, 0}},
	"-":  {{0, 0}, {1, 0}},
	"pu": {{1, 0}, {0, 0}},
	"pd": {{0, 0}, {0, 1}},
}

// vectorize maps a 2x2 matrix rho[a][b] to its super-spin vector.
func vectorize(rho [][]complex64) *tensor.Dense {
	v := tensor.Zeros(Dim)
	for a := range 2 {
		for b := range 2 {
			v.SetAt([]int{Label(a, b)}, rho[a][b])
		}
	}
	return v
}

func matmul2(x, y [][]complex64) [][]complex64 {
	z := [][]complex64{{0, 0}, {0, 0}}
	for i := range 2 {
		for j := range 2 {
			for k := range 2 {
				z[i][j] += x[i][k] * y[k][j]
			}
		}
	}
	return z
}

func TestMatrixAgainstPauli(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		pauli string
		left  bool
	}{
		{name: "Sz", pauli: "z"},
		{name: "Sx", pauli: "x"},
		{name: "Sy", pauli: "y"},
		{name: "S+", pauli: "+"},
		{name: "S-", pauli: "-"},
		{name: "projUp", pauli: "pu"},
		{name: "Su", pauli: "pu"},
		{name: "projDn", pauli: "pd"},
		{name: "Sd", pauli: "pd"},
		{name: "_Sz", pauli: "z", left: true},
		{name: "_Sx", pauli: "x", left: true},
		{name: "_Sy", pauli: "y", left: true},
		{name: "_S+", pauli: "+", left: true},
		{name: "_S-", pauli: "-", left: true},
		{name: "_projUp", pauli: "pu", left: true},
		{name: "_projDn", pauli: "pd", left: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			m, err := Matrix(test.name)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			o := pauliMatrices[test.pauli]
			for a := range 2 {
				for b := range 2 {
					rho := [][]complex64{{0, 0}, {0, 0}}
					rho[a][b] = 1
					var expected [][]complex64
					if test.left {
						expected = matmul2(o, rho)
					} else {
						expected = matmul2(rho, o)
					}
					got := tensor.MatMul(tensor.Zeros(1), m, vectorize(rho))
					if err := got.Equal(vectorize(expected), 1e-6); err != nil {
						t.Fatalf("%d %d %+v", a, b, err)
					}
				}
			}
		})
	}
}

func TestDual(t *testing.T) {
	t.Parallel()
	for _, op := range Ops() {
		t.Run(fmt.Sprintf("%v", op), func(t *testing.T) {
			t.Parallel()
			if op.Dual().Dual() != op {
				t.Fatalf("%v %v", op.Dual(), op.Dual().Dual())
			}
			m, err := op.Matrix()
			if errors.Is(err, ErrUnimplementedOperator) {
				return
			}
			if err != nil {
				t.Fatalf("%+v", err)
			}
			d, err := op.Dual().Matrix()
			if err != nil {
				t.Fatalf("%+v", err)
			}

			// expected = P @ conj(m) @ P.
			expected := tensor.Zeros(Dim, Dim)
			for i := range Dim {
				for j := range Dim {
					expected.SetAt([]int{Swap(i), Swap(j)}, m.Conj().At(i, j))
				}
			}
			if err := d.Equal(expected, 1e-6); err != nil {
				t.Fatalf("%+v", err)
			}
		})
	}
}

func TestMatrixEntries(t *testing.T) {
	t.Parallel()
	half := complex64(0.5)
	tests := []struct {
		name string
		in   int
		out  []complex64
	}{
		{name: "Id", in: DU, out: []complex64{0, 1, 0, 0}},
		{name: "Sz_Sz", in: UU, out: []complex64{1, 0, 0, 0}},
		{name: "Sz_Sz", in: DU, out: []complex64{0, -1, 0, 0}},
		{name: "Sz_Sz", in: UD, out: []complex64{0, 0, -1, 0}},
		{name: "Sz_Sz", in: DD, out: []complex64{0, 0, 0, 1}},
		{name: "_S-S+", in: UU, out: []complex64{0, 0, 0, 1}},
		{name: "_S-S+", in: DD, out: []complex64{0, 0, 0, 0}},
		{name: "_S+S-", in: DD, out: []complex64{1, 0, 0, 0}},
		{name: "_S+S-", in: UU, out: []complex64{0, 0, 0, 0}},
		{name: "SqrtX", in: UU, out: []complex64{half + half*1i, 0, half - half*1i, 0}},
		{name: "_SqrtX", in: UU, out: []complex64{half - half*1i, half + half*1i, 0, 0}},
		{name: "H", in: UD, out: []complex64{0.70710678, 0, -0.70710678, 0}},
		{name: "_H", in: DU, out: []complex64{0.70710678, -0.70710678, 0, 0}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s %d", test.name, test.in), func(t *testing.T) {
			t.Parallel()
			m, err := Matrix(test.name)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			in := tensor.Zeros(Dim)
			in.SetAt([]int{test.in}, 1)
			got := tensor.MatMul(tensor.Zeros(1), m, in)
			if err := got.Equal(tensor.T1(test.out), 1e-6); err != nil {
				t.Fatalf("%+v", err)
			}
		})
	}
}

func TestSquares(t *testing.T) {
	t.Parallel()
	id := tensor.Zeros(1).Eye(Dim, 0)
	tests := []struct {
		name   string
		square *tensor.Dense
	}{
		{name: "H", square: id},
		{name: "_H", square: id},
		{name: "Sx", square: id},
		{name: "_Sy", square: id},
		{name: "SqrtX", square: mustMatrix("Sx")},
		{name: "_SqrtX", square: mustMatrix("_Sx")},
		{name: "projUp", square: mustMatrix("projUp")},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			m := mustMatrix(test.name)
			if err := tensor.MatMul(tensor.Zeros(1), m, m).Equal(test.square, 1e-6); err != nil {
				t.Fatalf("%+v", err)
			}
		})
	}
}

func mustMatrix(name string) *tensor.Dense {
	m, err := Matrix(name)
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	return m
}

func TestErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
	}{
		{name: "Sw", err: ErrUnrecognizedOperator},
		{name: "", err: ErrUnrecognizedOperator},
		{name: "sz", err: ErrUnrecognizedOperator},
		{name: "Sx_Sx", err: ErrUnimplementedOperator},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%q", test.name), func(t *testing.T) {
			t.Parallel()
			_, err := Matrix(test.name)
			if !errors.Is(err, test.err) {
				t.Fatalf("%+v", err)
			}
		})
	}
}

func TestState(t *testing.T) {
	t.Parallel()
	tests := []struct {
		s     string
		label int
		err   error
	}{
		{s: "uu", label: UU},
		{s: "du", label: DU},
		{s: "ud", label: UD},
		{s: "dd", label: DD},
		{s: "up", err: ErrStateNotRecognized},
		{s: "DD", err: ErrStateNotRecognized},
	}
	for _, test := range tests {
		t.Run(test.s, func(t *testing.T) {
			t.Parallel()
			label, err := State(test.s)
			if test.err != nil {
				if !errors.Is(err, test.err) {
					t.Fatalf("%+v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if label != test.label {
				t.Fatalf("%d %d", label, test.label)
			}
		})
	}

	if v := ketBra(1, 0); v.At(DU) != 1 {
		t.Fatalf("%v", v.ToSlice1())
	}
	if v := ketBra(0, 1); v.At(UD) != 1 {
		t.Fatalf("%v", v.ToSlice1())
	}
}
