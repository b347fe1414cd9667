package lindblad

import (
	"log"
	"time"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"

	"github.com/haggaila/lindbladmpo/mps"
	"github.com/haggaila/lindbladmpo/pauli"
)

// Adjoint returns the vectorized rho.H, by conjugating each site and exchanging DU and UD.
func Adjoint(rho []*tensor.Dense) []*tensor.Dense {
	dag := make([]*tensor.Dense, 0, len(rho))
	for _, m := range rho {
		shape := m.Shape()
		d := tensor.Zeros(shape...)
		for l := range shape[leftAxis] {
			for s := range shape[upAxis] {
				for r := range shape[rightAxis] {
					d.SetAt([]int{l, pauli.Swap(s), r}, conj(m.At(l, s, r)))
				}
			}
		}
		dag = append(dag, d)
	}
	return dag
}

// MakeHermitian returns the compressed Hermitian part (rho + rho.H) / 2.
// A nil logger logs to log.Default().
func MakeHermitian(rho []*tensor.Dense, opt mps.CompressOptions, logger *log.Logger) ([]*tensor.Dense, error) {
	if logger == nil {
		logger = log.Default()
	}
	start := time.Now()
	before := mps.MaxBondDim(rho)

	h := mps.Scale(mps.Add(rho, Adjoint(rho)), 0.5)
	discarded, err := mps.Compress(h, opt)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	logger.Printf("hermitian bond dimension %d -> %d discarded %g in %v", before, mps.MaxBondDim(h), discarded, time.Since(start))
	return h, nil
}
