package lindblad

import (
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"

	"github.com/haggaila/lindbladmpo/pauli"
)

// BuildTraceReference returns the vectorized identity operator of n qubits.
// Its inner product with a density operator is the trace of the latter.
func BuildTraceReference(n int) []*tensor.Dense {
	ms := make([]*tensor.Dense, 0, n)
	for range n {
		ms = append(ms, traceSite())
	}
	return ms
}

func traceSite() *tensor.Dense {
	m := tensor.Zeros(1, pauli.Dim, 1)
	m.SetAt([]int{0, pauli.UU, 0}, 1)
	m.SetAt([]int{0, pauli.DD, 0}, 1)
	return m
}

// Purify returns the density operator |psi><psi| of the pure state psi of n qubits.
// The ket and bra bonds of each site are merged into a single bond b*D + b', where D is the bond dimension of psi.
// Sites are filled by workers goroutines.
func Purify(psi []*tensor.Dense, n, workers int) ([]*tensor.Dense, error) {
	if err := checkChain(psi, n, 2); err != nil {
		return nil, errors.Wrap(err, "")
	}

	rho := make([]*tensor.Dense, 0, n)
	for _, a := range psi {
		rho = append(rho, purifySite(a, workers))
	}
	return rho, nil
}

func purifySite(a *tensor.Dense, workers int) *tensor.Dense {
	shape := a.Shape()
	dl, dr := shape[leftAxis], shape[rightAxis]

	// r is allocated before any worker starts, and each worker writes the elements of distinct right bonds.
	r := tensor.Zeros(dl*dl, pauli.Dim, dr*dr)
	fill := func(c int) {
		for cb := range dr {
			for b := range dl {
				for bb := range dl {
					for ket := range 2 {
						for bra := range 2 {
							v := a.At(b, ket, c) * conj(a.At(bb, bra, cb))
							r.SetAt([]int{b*dl + bb, pauli.Label(ket, bra), c*dr + cb}, v)
						}
					}
				}
			}
		}
	}

	if workers <= 1 || dr == 1 {
		for c := range dr {
			fill(c)
		}
		return r
	}

	workCh := make(chan int)
	var wg sync.WaitGroup
	for range min(workers, dr) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range workCh {
				fill(c)
			}
		}()
	}
	for c := range dr {
		workCh <- c
	}
	close(workCh)
	wg.Wait()
	return r
}

// ProductState returns the density operator of a product state of n qubits.
// Each label is one of
//   - a super-spin basis element: "uu", "du", "ud", "dd"
//   - a pure state along a Bloch axis: "+z", "-z", "+x", "-x", "+y", "-y"
//   - the probability p of spin up in a diagonal mixed state, for example "0.25"
//
// A single label applies to all qubits.
func ProductState(labels []string, n int) ([]*tensor.Dense, error) {
	if len(labels) != 1 && len(labels) != n {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("%d %d", len(labels), n))
	}

	ms := make([]*tensor.Dense, 0, n)
	for i := range n {
		label := labels[0]
		if len(labels) == n {
			label = labels[i]
		}
		m, err := productSite(label)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", i+1))
		}
		ms = append(ms, m)
	}
	return ms, nil
}

func productSite(label string) (*tensor.Dense, error) {
	var v [pauli.Dim]complex64
	switch label {
	case "+z":
		v[pauli.UU] = 1
	case "-z":
		v[pauli.DD] = 1
	case "+x":
		v = [pauli.Dim]complex64{0.5, 0.5, 0.5, 0.5}
	case "-x":
		v = [pauli.Dim]complex64{0.5, -0.5, -0.5, 0.5}
	case "+y":
		v[pauli.UU], v[pauli.DD] = 0.5, 0.5
		v[pauli.DU], v[pauli.UD] = 0.5i, -0.5i
	case "-y":
		v[pauli.UU], v[pauli.DD] = 0.5, 0.5
		v[pauli.DU], v[pauli.UD] = -0.5i, 0.5i
	default:
		if s, err := pauli.State(label); err == nil {
			v[s] = 1
			break
		}
		p, err := strconv.ParseFloat(label, 64)
		if err != nil || math.IsNaN(p) || p < 0 || p > 1 {
			return nil, errors.Wrap(pauli.ErrStateNotRecognized, label)
		}
		v[pauli.UU], v[pauli.DD] = complex64(complex(p, 0)), complex64(complex(1-p, 0))
	}

	m := tensor.Zeros(1, pauli.Dim, 1)
	for s, vs := range v {
		m.SetAt([]int{0, s, 0}, vs)
	}
	return m, nil
}
