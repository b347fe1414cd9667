package lindblad

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/haggaila/lindbladmpo/exactdiag"
	"github.com/haggaila/lindbladmpo/mps"
	"github.com/haggaila/lindbladmpo/pauli"
)

func TestMakeHermitian(t *testing.T) {
	t.Parallel()
	tests := []struct {
		bonds []int
	}{
		{bonds: []int{}},
		{bonds: []int{2}},
		{bonds: []int{3, 2}},
		{bonds: []int{2, 3, 2}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%#v", test.bonds), func(t *testing.T) {
			t.Parallel()
			rho := randChain(pauli.Dim, test.bonds...)
			m := exactdiag.DensityMatrix(rho)
			r, _ := m.Dims()
			expected := mat.NewCDense(r, r, nil)
			for i := range r {
				for j := range r {
					expected.Set(i, j, (m.At(i, j)+conj128(m.At(j, i)))/2)
				}
			}

			var buf bytes.Buffer
			logger := log.New(&buf, "", 0)
			opt := mps.NewCompressOptions().Cutoff(1e-10)
			h, err := MakeHermitian(rho, opt, logger)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if !strings.Contains(buf.String(), "hermitian bond dimension") {
				t.Fatalf("%s", buf.String())
			}
			hm := exactdiag.DensityMatrix(h)
			if err := denseEqual(hm, expected, 1e-4); err != nil {
				t.Fatalf("%+v", err)
			}
			if err := denseEqual(hm, hermitianCopy(hm), 1e-4); err != nil {
				t.Fatalf("%+v", err)
			}

			// Idempotent.
			hh, err := MakeHermitian(h, opt, logger)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if err := denseEqual(exactdiag.DensityMatrix(hh), hm, 1e-4); err != nil {
				t.Fatalf("%+v", err)
			}
		})
	}
}

func TestAdjoint(t *testing.T) {
	t.Parallel()
	rho := randChain(pauli.Dim, 2, 2)
	m := exactdiag.DensityMatrix(rho)
	if err := denseEqual(exactdiag.DensityMatrix(Adjoint(rho)), hermitianCopy(m), 1e-5); err != nil {
		t.Fatalf("%+v", err)
	}
}

func hermitianCopy(m *mat.CDense) *mat.CDense {
	r, c := m.Dims()
	h := mat.NewCDense(c, r, nil)
	for i := range r {
		for j := range c {
			h.Set(j, i, conj128(m.At(i, j)))
		}
	}
	return h
}

func conj128(c complex128) complex128 {
	return complex(real(c), -imag(c))
}

func TestMakeHermitianNilLogger(t *testing.T) {
	t.Parallel()
	rho := randChain(pauli.Dim, 2, 2)
	h, err := MakeHermitian(rho, mps.NewCompressOptions(), nil)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	hm := exactdiag.DensityMatrix(h)
	if err := denseEqual(hm, hermitianCopy(hm), 1e-4); err != nil {
		t.Fatalf("%+v", err)
	}
}
