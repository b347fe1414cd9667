// Package lindblad simulates the open dynamics of a chain of qubits.
//
// The density operator rho of n qubits is vectorized into a matrix product state whose local dimension is four,
// see package pauli for the local basis.
// The generator of the dynamics, d(rho)/dt = -i L(rho), is a matrix product operator assembled from local and nearest neighbour terms.
//
// References:
//   - Simulation of open quantum systems by automated compression of arbitrary environments, Haggai Landa, Grégoire Misguich
package lindblad

import (
	"fmt"
	"log"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"

	"github.com/haggaila/lindbladmpo/mps"
	"github.com/haggaila/lindbladmpo/pauli"
)

// ErrShapeMismatch is returned when inputs disagree in length or tensor shapes.
var ErrShapeMismatch = errors.New("shape mismatch")

const (
	leftAxis  = 0
	upAxis    = 1
	rightAxis = 2
)

// Options are options of a System.
type Options struct {
	compress mps.CompressOptions
	workers  int
	logger   *log.Logger
}

// NewOptions returns the default options.
func NewOptions() Options {
	opt := Options{}
	opt.compress = mps.NewCompressOptions()
	opt.workers = 4
	opt.logger = log.Default()
	return opt
}

// Compress sets the options of truncating bond dimensions.
func (opt Options) Compress(c mps.CompressOptions) Options {
	opt.compress = c
	return opt
}

// Workers sets the number of goroutines used when purifying states.
func (opt Options) Workers(w int) Options {
	opt.workers = max(w, 1)
	return opt
}

// Logger sets the logger, with nil meaning log.Default().
func (opt Options) Logger(l *log.Logger) Options {
	if l == nil {
		l = log.Default()
	}
	opt.logger = l
	return opt
}

// A System is a chain of qubits together with its density operator and Lindbladian.
type System struct {
	N int
	// Identity is the vectorized identity operator, whose inner product with a density operator is its trace.
	Identity []*tensor.Dense
	Rho      []*tensor.Dense
	L        *Lindbladian

	opt Options
}

// NewSystem returns a system of n qubits in the all up state.
func NewSystem(n int, options ...Options) (*System, error) {
	if n < 1 {
		return nil, errors.Errorf("%d", n)
	}
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	// Fill in the fields left zero in Options{}.
	if opt.compress == (mps.CompressOptions{}) {
		opt.compress = mps.NewCompressOptions()
	}
	opt.workers = max(opt.workers, 1)
	if opt.logger == nil {
		opt.logger = log.Default()
	}

	s := &System{N: n, opt: opt}
	s.Identity = BuildTraceReference(n)
	s.L = NewLindbladian(n)
	if err := s.InitProductState([]string{"+z"}); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return s, nil
}

// CompressOptions returns the options of truncating bond dimensions.
func (s *System) CompressOptions() mps.CompressOptions { return s.opt.compress }

// Logger returns the logger of s.
func (s *System) Logger() *log.Logger { return s.opt.logger }

// InitProductState sets rho to a product state, see ProductState.
func (s *System) InitProductState(labels []string) error {
	rho, err := ProductState(labels, s.N)
	if err != nil {
		return errors.Wrap(err, "")
	}
	s.Rho = rho
	return nil
}

// Purify sets rho to |psi><psi|.
func (s *System) Purify(psi []*tensor.Dense) error {
	rho, err := Purify(psi, s.N, s.opt.workers)
	if err != nil {
		return errors.Wrap(err, "")
	}
	s.Rho = rho
	return nil
}

// SetRho replaces the density operator, and rebuilds the trace reference.
func (s *System) SetRho(rho []*tensor.Dense) error {
	if err := checkDensity(rho, s.N); err != nil {
		return errors.Wrap(err, "")
	}
	s.Rho = rho
	s.Identity = BuildTraceReference(s.N)
	return nil
}

// AddLocalDissipator adds the dissipative terms of a single qubit to the Lindbladian.
func (s *System) AddLocalDissipator(rates Rates, site int) error {
	return s.L.AddLocalDissipator(rates, site)
}

// Trace returns the trace of rho.
func (s *System) Trace() complex64 {
	return Trace(s.Identity, s.Rho)
}

// Purity returns the trace of rho squared.
func (s *System) Purity() complex64 {
	return Purity(s.Rho)
}

// Expect returns the expectation value of the product of ops at sites.
func (s *System) Expect(ops []string, sites []int) (complex64, error) {
	return Expect(s.Identity, s.Rho, ops, sites)
}

// NormalizeTrace rescales rho to unit trace.
func (s *System) NormalizeTrace() error {
	return NormalizeTrace(s.Identity, s.Rho)
}

// MakeHermitian replaces rho with its Hermitian part.
func (s *System) MakeHermitian() error {
	rho, err := MakeHermitian(s.Rho, s.opt.compress, s.opt.logger)
	if err != nil {
		return errors.Wrap(err, "")
	}
	s.Rho = rho
	return nil
}

// Compress truncates the bond dimensions of rho.
func (s *System) Compress() (float32, error) {
	discarded, err := mps.Compress(s.Rho, s.opt.compress)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	return discarded, nil
}

// checkDensity checks that ms is a chain of n sites of local dimension four with consistent bonds.
func checkDensity(ms []*tensor.Dense, n int) error {
	return checkChain(ms, n, pauli.Dim)
}

func checkChain(ms []*tensor.Dense, n, physD int) error {
	if len(ms) != n {
		return errors.Wrap(ErrShapeMismatch, fmt.Sprintf("%d %d", len(ms), n))
	}
	right := 1
	for i, m := range ms {
		shape := m.Shape()
		if len(shape) != 3 || shape[upAxis] != physD || shape[leftAxis] != right {
			return errors.Wrap(ErrShapeMismatch, fmt.Sprintf("%d %#v", i, shape))
		}
		right = shape[rightAxis]
	}
	if right != 1 {
		return errors.Wrap(ErrShapeMismatch, fmt.Sprintf("%#v", ms[len(ms)-1].Shape()))
	}
	return nil
}

// checkSite checks that the 1-based site is within a chain of n qubits.
func checkSite(site, n int) error {
	if site < 1 || site > n {
		return errors.Wrap(ErrShapeMismatch, fmt.Sprintf("site %d n %d", site, n))
	}
	return nil
}

func innerProduct(x, y []*tensor.Dense) complex64 {
	bufs := [2]*tensor.Dense{tensor.Zeros(1), tensor.Zeros(1)}
	return mps.InnerProduct(x, y, bufs)
}

func conj(c complex64) complex64 {
	return complex(real(c), -imag(c))
}
