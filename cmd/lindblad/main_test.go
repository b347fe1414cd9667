package main

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/haggaila/lindbladmpo/config"
	"github.com/haggaila/lindbladmpo/mps"
)

func readCSV(t *testing.T, fpath string) [][]string {
	f, err := os.Open(fpath)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	return records
}

func TestRun(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)

	cfg := config.Default()
	cfg.N = 3
	cfg.TFinal = 0.5
	cfg.Tau = 0.05
	cfg.OutputStep = 5
	cfg.G1 = config.Values{1}
	cfg.HX = config.Values{0.5}
	cfg.J = config.Values{1, 0.5}
	cfg.Observables = []string{"Sz"}
	cfg.OneQubitIndices = []int{3, 1}
	cfg.TwoQubitComponents = []string{"ZZ", "XY"}
	cfg.TwoQubitIndices = [][]int{{1, 2}, {3, 2}}
	cfg.SaveState = filepath.Join(dir, "state.db")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("%+v", err)
	}

	runDir := filepath.Join(dir, "run")
	if err := run(context.Background(), runDir, cfg); err != nil {
		t.Fatalf("%+v", err)
	}

	// Observations at steps 0, 5, and 10, each of 2 sites, after the header.
	obs := readCSV(t, filepath.Join(runDir, cfg.OutputFilesPrefix+".obs-1q.csv"))
	if len(obs) != 1+3*2 {
		t.Fatalf("%d %v", len(obs), obs)
	}
	if obs[1][2] != "3" || obs[2][2] != "1" {
		t.Fatalf("%v", obs)
	}
	// 2 components on 2 pairs at each of the 3 observations.
	obs2q := readCSV(t, filepath.Join(runDir, cfg.OutputFilesPrefix+".obs-2q.csv"))
	if len(obs2q) != 1+3*2*2 {
		t.Fatalf("%d %v", len(obs2q), obs2q)
	}
	// All qubits start up, so that <Sz Sz> is 1 and <Sx Sy> is 0.
	for i, expected := range []struct {
		op     string
		q1, q2 string
		re     float64
	}{
		{op: "ZZ", q1: "1", q2: "2", re: 1},
		{op: "ZZ", q1: "3", q2: "2", re: 1},
		{op: "XY", q1: "1", q2: "2", re: 0},
		{op: "XY", q1: "3", q2: "2", re: 0},
	} {
		row := obs2q[1+i]
		if row[0] != "0" || row[1] != expected.op || row[2] != expected.q1 || row[3] != expected.q2 {
			t.Fatalf("%d %v", i, row)
		}
		re, err := strconv.ParseFloat(row[4], 64)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if d := re - expected.re; d > 1e-5 || d < -1e-5 {
			t.Fatalf("%d %v", i, row)
		}
	}
	global := readCSV(t, filepath.Join(runDir, cfg.OutputFilesPrefix+".global.csv"))
	if len(global) != 1+3 {
		t.Fatalf("%d %v", len(global), global)
	}
	for _, row := range global[1:] {
		tr, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if tr < 0.999 || tr > 1.001 {
			t.Fatalf("%v", row)
		}
	}
	for _, fname := range []string{fnameDone, fnameConfig} {
		if _, err := os.Stat(filepath.Join(runDir, fname)); err != nil {
			t.Fatalf("%+v", err)
		}
	}

	// Continue from the saved state.
	cfg2 := config.Default()
	cfg2.N = 3
	cfg2.TInit, cfg2.TFinal, cfg2.Tau = 0.5, 0.6, 0.05
	cfg2.G1 = config.Values{1}
	cfg2.LoadState = cfg.SaveState
	if err := run(context.Background(), filepath.Join(dir, "run2"), cfg2); err != nil {
		t.Fatalf("%+v", err)
	}
	first := readCSV(t, filepath.Join(runDir, cfg.OutputFilesPrefix+".obs-1q.csv"))
	second := readCSV(t, filepath.Join(dir, "run2", cfg2.OutputFilesPrefix+".obs-1q.csv"))
	// The last Sz of site 1 of the first run equals the first Sz of site 1 in the second.
	var last, next []string
	for _, row := range first[1:] {
		if row[1] == "Sz" && row[2] == "1" {
			last = row
		}
	}
	for _, row := range second[1:] {
		if row[1] == "Sz" && row[2] == "1" {
			next = row
			break
		}
	}
	a, err := strconv.ParseFloat(last[3], 64)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	b, err := strconv.ParseFloat(next[3], 64)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if d := a - b; d > 1e-5 || d < -1e-5 {
		t.Fatalf("%v %v", last, next)
	}

	// A finished run is skipped.
	if err := run(context.Background(), runDir, cfg); err != nil {
		t.Fatalf("%+v", err)
	}
}

func TestLoadStateCompression(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)

	cfg := config.Default()
	cfg.N = 3
	cfg.InitProductState = config.Strings{"+x"}
	cfg.CutOffRho = 1e-10
	sys, err := newSystem(cfg)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	// rho/2 + rho/2 doubles the bond dimensions without changing the state.
	if err := sys.SetRho(mps.Scale(mps.Add(sys.Rho, sys.Rho), 0.5)); err != nil {
		t.Fatalf("%+v", err)
	}
	fpath := filepath.Join(dir, fnameState)
	if err := saveState(sys, fpath); err != nil {
		t.Fatalf("%+v", err)
	}

	tests := []struct {
		compress bool
		bondDim  int
	}{
		{compress: false, bondDim: 2},
		{compress: true, bondDim: 1},
	}
	for _, test := range tests {
		loaded, err := newSystem(cfg)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if err := loadState(loaded, fpath, test.compress); err != nil {
			t.Fatalf("%+v", err)
		}
		if d := mps.MaxBondDim(loaded.Rho); d != test.bondDim {
			t.Fatalf("%v %d %#v", test.compress, d, mps.BondDims(loaded.Rho))
		}
		for i := 1; i <= cfg.N; i++ {
			v, err := loaded.Expect([]string{"Sx"}, []int{i})
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if d := real(v) - 1; d > 1e-4 || d < -1e-4 {
				t.Fatalf("%v %d %v", test.compress, i, v)
			}
		}
	}
}
