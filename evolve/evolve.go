// Package evolve integrates the Lindblad equation d(rho)/dt = -i L(rho) of a lindblad.System.
//
// Time steps expand exp(-i tau L) in a Taylor series, with each power of L applied as a matrix product operator,
// and the bond dimensions of rho truncated after every application.
// Steady states are found by a ground state search of L.H @ L, whose zero eigenvector is the fixed point of the dynamics.
package evolve

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"

	"github.com/haggaila/lindbladmpo"
	"github.com/haggaila/lindbladmpo/mps"
	"github.com/haggaila/lindbladmpo/util"
)

// MaxOrder is the highest supported order of the Taylor expansion.
const MaxOrder = 6

// Options are options of time evolution.
type Options struct {
	tau           float64
	tInit         float64
	tFinal        float64
	outputStep    int
	hermitianStep int
	forceTrace    bool
	order         int
	compress      mps.CompressOptions
	logInterval   time.Duration
}

// NewOptions returns the default time evolution options.
func NewOptions() Options {
	opt := Options{}
	opt.tau = 0.01
	opt.tInit = 0
	opt.tFinal = 1
	opt.outputStep = 1
	opt.order = 4
	opt.compress = mps.NewCompressOptions()
	opt.logInterval = 10 * time.Second
	return opt
}

// Tau sets the time step.
func (opt Options) Tau(tau float64) Options {
	opt.tau = tau
	return opt
}

// TInit sets the initial time.
func (opt Options) TInit(t float64) Options {
	opt.tInit = t
	return opt
}

// TFinal sets the final time.
func (opt Options) TFinal(t float64) Options {
	opt.tFinal = t
	return opt
}

// OutputStep sets the number of steps between observations, with 0 observing only the initial and final states.
func (opt Options) OutputStep(s int) Options {
	opt.outputStep = s
	return opt
}

// HermitianStep sets the number of steps between replacing rho with its Hermitian part, with 0 never doing so.
func (opt Options) HermitianStep(s int) Options {
	opt.hermitianStep = s
	return opt
}

// ForceTrace sets whether rho is rescaled to unit trace after every step.
func (opt Options) ForceTrace(f bool) Options {
	opt.forceTrace = f
	return opt
}

// Order sets the order of the Taylor expansion of a step.
func (opt Options) Order(o int) Options {
	opt.order = o
	return opt
}

// Compress sets the truncation of bond dimensions after each operator application.
func (opt Options) Compress(c mps.CompressOptions) Options {
	opt.compress = c
	return opt
}

// LogInterval sets the minimum interval between progress logs.
func (opt Options) LogInterval(d time.Duration) Options {
	opt.logInterval = d
	return opt
}

// Steps returns the number of steps from the initial to the final time.
func (opt Options) Steps() int {
	return int(math.Round((opt.tFinal - opt.tInit) / opt.tau))
}

// End returns the time reached after Steps steps, which differs from the final time when the interval is not a whole number of steps.
func (opt Options) End() float64 {
	return opt.tInit + float64(opt.Steps())*opt.tau
}

func (opt Options) validate() error {
	switch {
	case !(opt.tau > 0):
		return errors.Errorf("tau %g", opt.tau)
	case opt.tFinal < opt.tInit:
		return errors.Errorf("t_final %g t_init %g", opt.tFinal, opt.tInit)
	case opt.outputStep < 0:
		return errors.Errorf("output step %d", opt.outputStep)
	case opt.hermitianStep < 0:
		return errors.Errorf("hermitian step %d", opt.hermitianStep)
	case opt.order < 1 || opt.order > MaxOrder:
		return errors.Errorf("order %d", opt.order)
	}
	return nil
}

// Step returns exp(-i tau L) rho, expanded to the given order, where ws is the operator L.
// rho is left unchanged.
func Step(ws, rho []*tensor.Dense, opt Options) ([]*tensor.Dense, error) {
	if err := opt.validate(); err != nil {
		return nil, errors.Wrap(err, "")
	}

	// term is (-i tau L)^k rho / k!.
	sum := mps.Clone(rho)
	term := rho
	for k := 1; k <= opt.order; k++ {
		c := complex64(complex(0, -opt.tau/float64(k)))
		term = mps.Scale(mps.ApplyMPO(ws, term), c)
		if _, err := mps.Compress(term, opt.compress); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("term %d", k))
		}

		sum = mps.Add(sum, term)
		if _, err := mps.Compress(sum, opt.compress); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("sum %d", k))
		}
	}
	return sum, nil
}

// An Observer is called with the time and step of each observed state.
type Observer func(t float64, step int) error

// Run evolves sys.Rho from the initial to the final time.
// observe is called at the initial time, every output step, and at the final time.
func Run(ctx context.Context, sys *lindblad.System, opt Options, observe Observer) error {
	if err := opt.validate(); err != nil {
		return errors.Wrap(err, "")
	}
	if observe == nil {
		observe = func(float64, int) error { return nil }
	}
	ws, err := sys.L.MPO()
	if err != nil {
		return errors.Wrap(err, "")
	}

	logger := sys.Logger()
	throttler := util.NewSkipThrottler(opt.logInterval)
	start := time.Now()
	steps := opt.Steps()
	if end := opt.End(); math.Abs(end-opt.tFinal) > 1e-9*max(1, math.Abs(opt.tFinal)) {
		logger.Printf("t_final %g is not a whole number of steps of %g from t_init %g, ending at %g", opt.tFinal, opt.tau, opt.tInit, end)
	}
	if err := observe(opt.tInit, 0); err != nil {
		return errors.Wrap(err, "")
	}
	for step := 1; step <= steps; step++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, fmt.Sprintf("step %d", step))
		}

		rho, err := Step(ws, sys.Rho, opt)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("step %d", step))
		}
		sys.Rho = rho
		if opt.hermitianStep > 0 && step%opt.hermitianStep == 0 {
			if err := sys.MakeHermitian(); err != nil {
				return errors.Wrap(err, fmt.Sprintf("step %d", step))
			}
		}
		if opt.forceTrace {
			if err := sys.NormalizeTrace(); err != nil {
				return errors.Wrap(err, fmt.Sprintf("step %d", step))
			}
		}

		t := opt.tInit + float64(step)*opt.tau
		if step == steps || (opt.outputStep > 0 && step%opt.outputStep == 0) {
			if err := observe(t, step); err != nil {
				return errors.Wrap(err, fmt.Sprintf("step %d", step))
			}
		}
		if throttler.Ok() {
			logger.Printf("t %g step %d/%d bond dimension %d trace %v elapsed %v", t, step, steps, mps.MaxBondDim(sys.Rho), sys.Trace(), time.Since(start))
		}
	}
	return nil
}

// SteadyState replaces sys.Rho with the steady state of its Lindbladian, normalized to unit trace.
// The search is restricted to bond dimensions up to bondDim, and converges when the variance of L.H @ L falls below tol.
func SteadyState(sys *lindblad.System, bondDim int, tol float32) error {
	if sys.N < 2 {
		return errors.Errorf("steady state search needs at least 2 qubits, got %d", sys.N)
	}
	if bondDim < 1 {
		return errors.Errorf("%d", bondDim)
	}
	ws, err := sys.L.MPO()
	if err != nil {
		return errors.Wrap(err, "")
	}
	h := mps.AdjointProduct(ws)

	fs := make([]*tensor.Dense, 0, len(h))
	for range h {
		fs = append(fs, tensor.Zeros(1))
	}
	var bufs [10]*tensor.Dense
	for i := range bufs {
		bufs[i] = tensor.Zeros(1)
	}

	start := time.Now()
	state := mps.RandMPS(h, bondDim)
	opt := mps.NewSearchGroundStateOptions().Tol(tol)
	if err := mps.SearchGroundState(fs, h, state, bufs, opt); err != nil {
		return errors.Wrap(err, "")
	}
	if err := lindblad.NormalizeTrace(sys.Identity, state); err != nil {
		return errors.Wrap(err, "")
	}
	sys.Rho = state

	sys.Logger().Printf("steady state bond dimension %d in %v", mps.MaxBondDim(state), time.Since(start))
	return nil
}
