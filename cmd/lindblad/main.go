package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/haggaila/lindbladmpo"
	"github.com/haggaila/lindbladmpo/config"
	"github.com/haggaila/lindbladmpo/evolve"
	"github.com/haggaila/lindbladmpo/exactdiag"
	"github.com/haggaila/lindbladmpo/mps"
	"github.com/haggaila/lindbladmpo/store"
)

const (
	fnameConfig = "config.yaml"
	fnameDone   = "done.txt"
	fnameState  = "state.db"
	stateName   = "rho"

	// maxExactN is the largest number of qubits for the dense diagnostic.
	maxExactN = 6
)

var (
	configPath = flag.String("config", "", "configuration file")
	runDir     = flag.String("d", filepath.Join("runs", "lindblad"), "run directory")
	exact      = flag.Bool("exact", false, "compare the final state against dense matrices, for small chains only")
	save       = flag.Bool("save", false, "save the final state in the run directory, unless save_state is configured")
)

func newSystem(cfg *config.Config) (*lindblad.System, error) {
	compress := mps.NewCompressOptions().MaxDim(cfg.MaxDimRho).Cutoff(float32(cfg.CutOffRho))
	opt := lindblad.NewOptions().Compress(compress).Workers(cfg.Workers)
	sys, err := lindblad.NewSystem(cfg.N, opt)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := sys.InitProductState(cfg.InitProductState); err != nil {
		return nil, errors.Wrap(err, "")
	}

	for i := 1; i <= cfg.N; i++ {
		rates := lindblad.Rates{Plus: cfg.G0.At(i), Minus: cfg.G1.At(i), Dephasing: cfg.G2.At(i)}
		if err := sys.AddLocalDissipator(rates, i); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", i))
		}
		field := lindblad.Field{X: cfg.HX.At(i), Y: cfg.HY.At(i), Z: cfg.HZ.At(i)}
		if err := sys.L.AddLocalField(field, i); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", i))
		}
	}
	// J is the flip-flop coupling J (S+ S- + S- S+) = J/2 (Sx Sx + Sy Sy).
	for i := 1; i < cfg.N; i++ {
		c := lindblad.Coupling{XX: cfg.J.At(i) / 2, YY: cfg.J.At(i) / 2, ZZ: cfg.JZ.At(i)}
		if err := sys.L.AddCoupling(c, i, i+1); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", i))
		}
	}
	return sys, nil
}

// loadState replaces the state of sys with the one saved at path, compressing it if requested.
func loadState(sys *lindblad.System, path string, compress bool) error {
	s, err := store.Open(path)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer s.Close()
	rho, err := s.Load(stateName)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := sys.SetRho(rho); err != nil {
		return errors.Wrap(err, "")
	}

	if !compress {
		return nil
	}
	before := mps.MaxBondDim(sys.Rho)
	discarded, err := sys.Compress()
	if err != nil {
		return errors.Wrap(err, "")
	}
	sys.Logger().Printf("compressed loaded state bond dimension %d -> %d discarded %g", before, mps.MaxBondDim(sys.Rho), discarded)
	return nil
}

func saveState(sys *lindblad.System, path string) error {
	s, err := store.Open(path)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := s.Save(stateName, sys.Rho); err != nil {
		s.Close()
		return errors.Wrap(err, "")
	}
	if err := s.Close(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// An observer writes the observables of each observed state.
type observer struct {
	sys        *lindblad.System
	ops        []string
	sites      []int
	components []string
	pairs      [][]int

	files   []*os.File
	w1q     *csv.Writer
	w2q     *csv.Writer
	wglob   *csv.Writer
	rows1q  int
	rows2q  int
	writers []*csv.Writer
}

func newObserver(sys *lindblad.System, cfg *config.Config, prefix string) (*observer, error) {
	o := &observer{sys: sys, ops: cfg.Observables, sites: cfg.Sites(), components: cfg.TwoQubitComponents, pairs: cfg.TwoQubitIndices}
	outputs := []struct {
		w      **csv.Writer
		suffix string
		header []string
	}{
		{w: &o.w1q, suffix: ".obs-1q.csv", header: []string{"t", "op", "q", "re", "im"}},
		{w: &o.w2q, suffix: ".obs-2q.csv", header: []string{"t", "op", "q1", "q2", "re", "im"}},
		{w: &o.wglob, suffix: ".global.csv", header: []string{"t", "trace", "purity", "bond_dim"}},
	}
	for _, out := range outputs {
		f, err := os.Create(prefix + out.suffix)
		if err != nil {
			o.Close()
			return nil, errors.Wrap(err, "")
		}
		o.files = append(o.files, f)
		*out.w = csv.NewWriter(f)
		o.writers = append(o.writers, *out.w)

		if err := (*out.w).Write(out.header); err != nil {
			o.Close()
			return nil, errors.Wrap(err, "")
		}
	}
	return o, nil
}

func (o *observer) observe(t float64, step int) error {
	ts := strconv.FormatFloat(t, 'f', -1, 64)
	for _, op := range o.ops {
		for _, i := range o.sites {
			v, err := o.sys.Expect([]string{op}, []int{i})
			if err != nil {
				return errors.Wrap(err, fmt.Sprintf("%s %d", op, i))
			}
			row := []string{ts, op, strconv.Itoa(i), formatFloat(real(v)), formatFloat(imag(v))}
			if err := o.w1q.Write(row); err != nil {
				return errors.Wrap(err, "")
			}
			o.rows1q++
		}
	}

	for _, comp := range o.components {
		ops, err := config.TwoQubitOps(comp)
		if err != nil {
			return errors.Wrap(err, "")
		}
		for _, p := range o.pairs {
			v, err := o.sys.Expect(ops[:], p)
			if err != nil {
				return errors.Wrap(err, fmt.Sprintf("%s %v", comp, p))
			}
			row := []string{ts, comp, strconv.Itoa(p[0]), strconv.Itoa(p[1]), formatFloat(real(v)), formatFloat(imag(v))}
			if err := o.w2q.Write(row); err != nil {
				return errors.Wrap(err, "")
			}
			o.rows2q++
		}
	}

	row := []string{ts, formatFloat(real(o.sys.Trace())), formatFloat(real(o.sys.Purity())), strconv.Itoa(mps.MaxBondDim(o.sys.Rho))}
	if err := o.wglob.Write(row); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func (o *observer) Close() error {
	var err error
	for _, w := range o.writers {
		w.Flush()
		if err1 := w.Error(); err1 != nil && err == nil {
			err = errors.Wrap(err1, "")
		}
	}
	for _, f := range o.files {
		if err1 := f.Close(); err1 != nil && err == nil {
			err = errors.Wrap(err1, "")
		}
	}
	return err
}

func formatFloat(x float32) string {
	return strconv.FormatFloat(float64(x), 'g', -1, 32)
}

// diagnose compares the final state against its dense density matrix.
func diagnose(sys *lindblad.System) error {
	if sys.N > maxExactN {
		log.Printf("skipping dense diagnostic for %d qubits", sys.N)
		return nil
	}
	m := exactdiag.DensityMatrix(sys.Rho)
	spectrum, err := exactdiag.Spectrum(m)
	if err != nil {
		return errors.Wrap(err, "")
	}
	log.Printf("dense trace %v purity %v hermiticity error %g smallest eigenvalue %g largest eigenvalue %g", exactdiag.Trace(m), exactdiag.Purity(m), exactdiag.HermiticityError(m), spectrum[0], spectrum[len(spectrum)-1])
	return nil
}

func run(ctx context.Context, dir string, cfg *config.Config) error {
	donePath := filepath.Join(dir, fnameDone)
	if _, err := os.Stat(donePath); err == nil {
		log.Printf("%s already done", dir)
		return nil
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	if err := cfg.Save(filepath.Join(dir, fnameConfig)); err != nil {
		return errors.Wrap(err, "")
	}

	sys, err := newSystem(cfg)
	if err != nil {
		return errors.Wrap(err, "")
	}
	switch {
	case cfg.LoadState != "":
		if err := loadState(sys, cfg.LoadState, cfg.InitialRhoCompression); err != nil {
			return errors.Wrap(err, cfg.LoadState)
		}
	case cfg.SteadyStateMaxDim > 0:
		if err := evolve.SteadyState(sys, cfg.SteadyStateMaxDim, float32(cfg.SteadyStateTol)); err != nil {
			return errors.Wrap(err, "")
		}
	}

	obs, err := newObserver(sys, cfg, filepath.Join(dir, cfg.OutputFilesPrefix))
	if err != nil {
		return errors.Wrap(err, "")
	}
	opt := evolve.NewOptions().Tau(cfg.Tau).TInit(cfg.TInit).TFinal(cfg.TFinal).OutputStep(cfg.OutputStep).
		HermitianStep(cfg.ForceRhoHermitianStep).ForceTrace(cfg.ForceRhoTrace).Order(cfg.Order).Compress(sys.CompressOptions())
	start := time.Now()
	err = evolve.Run(ctx, sys, opt, obs.observe)
	if err1 := obs.Close(); err1 != nil && err == nil {
		err = err1
	}
	if err != nil {
		return errors.Wrap(err, "")
	}
	log.Printf("evolved %d steps, %d single qubit and %d two qubit observations, bond dimension %d in %v", opt.Steps(), obs.rows1q, obs.rows2q, mps.MaxBondDim(sys.Rho), time.Since(start))

	if cfg.SaveState != "" {
		if err := saveState(sys, cfg.SaveState); err != nil {
			return errors.Wrap(err, cfg.SaveState)
		}
	}
	if *exact {
		if err := diagnose(sys); err != nil {
			return errors.Wrap(err, "")
		}
	}

	if err := os.WriteFile(donePath, nil, 0644); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	if err := mainWithErr(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr() error {
	if *configPath == "" {
		return errors.Errorf("no configuration file")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if cfg.UniqueID == "" {
		cfg.UniqueID = uuid.New().String()
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, *configPath)
	}
	if cfg.SaveState == "" && *save {
		cfg.SaveState = filepath.Join(*runDir, cfg.UniqueID, fnameState)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dir := filepath.Join(*runDir, cfg.UniqueID)
	if err := run(ctx, dir, cfg); err != nil {
		return errors.Wrap(err, fmt.Sprintf("%#v", cfg))
	}
	log.Printf("%s", dir)
	return nil
}
