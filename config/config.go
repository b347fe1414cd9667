// Package config handles the parameters of a simulation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/haggaila/lindbladmpo/evolve"
	"github.com/haggaila/lindbladmpo/pauli"
)

// Values are per-site or per-bond parameters.
// A single value applies to all sites, and an empty list means zero everywhere.
// In YAML, a single value may be written as a scalar.
type Values []float64

// UnmarshalYAML accepts both a scalar and a sequence.
func (v *Values) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var x float64
		if err := node.Decode(&x); err != nil {
			return errors.Wrap(err, "")
		}
		*v = Values{x}
	case yaml.SequenceNode:
		var xs []float64
		if err := node.Decode(&xs); err != nil {
			return errors.Wrap(err, "")
		}
		*v = nil
		if len(xs) > 0 {
			*v = xs
		}
	default:
		return errors.Errorf("line %d: expected a number or a list of numbers", node.Line)
	}
	return nil
}

// At returns the value at the 1-based index i.
func (v Values) At(i int) float64 {
	switch len(v) {
	case 0:
		return 0
	case 1:
		return v[0]
	}
	return v[i-1]
}

// Strings are per-site labels, which in YAML may be written as a single scalar.
type Strings []string

// UnmarshalYAML accepts both a scalar and a sequence.
func (s *Strings) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = Strings{node.Value}
	case yaml.SequenceNode:
		var xs []string
		if err := node.Decode(&xs); err != nil {
			return errors.Wrap(err, "")
		}
		*s = nil
		if len(xs) > 0 {
			*s = xs
		}
	default:
		return errors.Errorf("line %d: expected a string or a list of strings", node.Line)
	}
	return nil
}

// Config is the configuration of a simulation.
type Config struct {
	N int `yaml:"N"`

	TInit      float64 `yaml:"t_init"`
	TFinal     float64 `yaml:"t_final"`
	Tau        float64 `yaml:"tau"`
	OutputStep int     `yaml:"output_step"`
	Order      int     `yaml:"order"`

	MaxDimRho             int     `yaml:"max_dim_rho"`
	CutOffRho             float64 `yaml:"cut_off_rho"`
	ForceRhoTrace         bool    `yaml:"b_force_rho_trace"`
	ForceRhoHermitianStep int     `yaml:"force_rho_hermitian_step"`

	InitProductState Strings `yaml:"init_product_state"`
	// SteadyStateMaxDim, if positive, replaces the initial state with the steady state searched up to this bond dimension.
	SteadyStateMaxDim int     `yaml:"steady_state_max_dim"`
	SteadyStateTol    float64 `yaml:"steady_state_tol"`

	// G0 is the rate of pumping up, G1 the rate of decay, and G2 the rate of dephasing.
	G0 Values `yaml:"g_0"`
	G1 Values `yaml:"g_1"`
	G2 Values `yaml:"g_2"`
	HX Values `yaml:"h_x"`
	HY Values `yaml:"h_y"`
	HZ Values `yaml:"h_z"`
	// J is the XX + YY coupling, and JZ the ZZ coupling, of the bonds between neighbouring sites.
	J  Values `yaml:"J"`
	JZ Values `yaml:"J_z"`

	// Observables are measured on the sites of OneQubitIndices.
	Observables []string `yaml:"observables"`
	// OneQubitIndices are 1-based sites, with none meaning every site.
	OneQubitIndices []int `yaml:"1q_indices,omitempty"`
	// TwoQubitComponents are correlators such as "XZ", which is Sx at the first site of a pair and Sz at the second.
	TwoQubitComponents []string `yaml:"2q_components,omitempty"`
	// TwoQubitIndices are pairs of 1-based sites.
	TwoQubitIndices [][]int `yaml:"2q_indices,omitempty"`

	LoadState string `yaml:"load_state"`
	// InitialRhoCompression compresses a loaded state with MaxDimRho and CutOffRho before evolving.
	InitialRhoCompression bool `yaml:"b_initial_rho_compression"`

	SaveState         string `yaml:"save_state"`
	OutputFilesPrefix string `yaml:"output_files_prefix"`
	UniqueID          string `yaml:"unique_id"`
	Metadata          string `yaml:"metadata"`
	Workers           int    `yaml:"workers"`
}

// Default returns the default configuration.
// The number of qubits has no default.
func Default() *Config {
	return &Config{
		TInit:                 0,
		TFinal:                1,
		Tau:                   0.1,
		OutputStep:            1,
		Order:                 4,
		MaxDimRho:             400,
		CutOffRho:             1e-16,
		ForceRhoTrace:         true,
		ForceRhoHermitianStep: 4,
		InitProductState:      Strings{"+z"},
		SteadyStateTol:        1e-4,
		Observables:           []string{"Sx", "Sy", "Sz"},
		TwoQubitComponents:    []string{"XX", "YY", "ZZ"},
		OutputFilesPrefix:     "lindblad",
		Workers:               4,
	}
}

// Load loads the configuration at path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return cfg, nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// Validate checks that the parameters are consistent.
func (c *Config) Validate() error {
	switch {
	case c.N < 1:
		return errors.Errorf("N %d", c.N)
	case !(c.Tau > 0):
		return errors.Errorf("tau %g", c.Tau)
	case c.TFinal < c.TInit:
		return errors.Errorf("t_final %g t_init %g", c.TFinal, c.TInit)
	case c.OutputStep < 0:
		return errors.Errorf("output_step %d", c.OutputStep)
	case c.Order < 1 || c.Order > evolve.MaxOrder:
		return errors.Errorf("order %d", c.Order)
	case c.MaxDimRho < 1:
		return errors.Errorf("max_dim_rho %d", c.MaxDimRho)
	case c.CutOffRho < 0:
		return errors.Errorf("cut_off_rho %g", c.CutOffRho)
	case c.ForceRhoHermitianStep < 0:
		return errors.Errorf("force_rho_hermitian_step %d", c.ForceRhoHermitianStep)
	case c.SteadyStateMaxDim < 0:
		return errors.Errorf("steady_state_max_dim %d", c.SteadyStateMaxDim)
	case c.SteadyStateMaxDim > 0 && c.N < 2:
		return errors.Errorf("steady state search needs at least 2 qubits, got %d", c.N)
	case c.Workers < 1:
		return errors.Errorf("workers %d", c.Workers)
	case strings.ContainsAny(c.Metadata, "\r\n"):
		return errors.Errorf("metadata contains a line break %q", c.Metadata)
	}

	if n := len(c.InitProductState); n != 1 && n != c.N {
		return errors.Errorf("init_product_state has %d labels for %d qubits", n, c.N)
	}

	perSite := []struct {
		name     string
		v        Values
		positive bool
	}{
		{name: "g_0", v: c.G0, positive: true},
		{name: "g_1", v: c.G1, positive: true},
		{name: "g_2", v: c.G2, positive: true},
		{name: "h_x", v: c.HX},
		{name: "h_y", v: c.HY},
		{name: "h_z", v: c.HZ},
	}
	for _, p := range perSite {
		if n := len(p.v); n > 1 && n != c.N {
			return errors.Errorf("%s has %d values for %d qubits", p.name, n, c.N)
		}
		if !p.positive {
			continue
		}
		for i, x := range p.v {
			if x < 0 {
				return errors.Errorf("%s[%d] negative rate %g", p.name, i, x)
			}
		}
	}

	for _, p := range []struct {
		name string
		v    Values
	}{{name: "J", v: c.J}, {name: "J_z", v: c.JZ}} {
		if n := len(p.v); n > 1 && n != c.N-1 {
			return errors.Errorf("%s has %d values for %d bonds", p.name, n, c.N-1)
		}
	}

	for _, o := range c.Observables {
		op, err := pauli.Parse(o)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("observables %#v", c.Observables))
		}
		if _, err := op.Matrix(); err != nil {
			return errors.Wrap(err, fmt.Sprintf("observables %#v", c.Observables))
		}
	}

	sites := make(map[int]bool)
	for _, i := range c.OneQubitIndices {
		switch {
		case i < 1 || i > c.N:
			return errors.Errorf("1q_indices %#v out of range for %d qubits", c.OneQubitIndices, c.N)
		case sites[i]:
			return errors.Errorf("1q_indices %#v repeat %d", c.OneQubitIndices, i)
		}
		sites[i] = true
	}

	components := make(map[string]bool)
	for _, comp := range c.TwoQubitComponents {
		if _, err := TwoQubitOps(comp); err != nil {
			return errors.Wrap(err, "")
		}
		if components[comp] {
			return errors.Errorf("2q_components %#v repeat %s", c.TwoQubitComponents, comp)
		}
		components[comp] = true
	}

	pairs := make(map[[2]int]bool)
	for _, p := range c.TwoQubitIndices {
		if len(p) != 2 {
			return errors.Errorf("2q_indices %v is not a pair", p)
		}
		i, j := p[0], p[1]
		switch {
		case i < 1 || i > c.N || j < 1 || j > c.N:
			return errors.Errorf("2q_indices %v out of range for %d qubits", p, c.N)
		case i == j:
			return errors.Errorf("2q_indices %v pairs a qubit with itself", p)
		}
		key := [2]int{min(i, j), max(i, j)}
		if pairs[key] {
			return errors.Errorf("2q_indices %v repeat %v", c.TwoQubitIndices, p)
		}
		pairs[key] = true
	}
	return nil
}

// Sites returns the sites of the single qubit observables.
func (c *Config) Sites() []int {
	if len(c.OneQubitIndices) > 0 {
		return c.OneQubitIndices
	}
	sites := make([]int, 0, c.N)
	for i := 1; i <= c.N; i++ {
		sites = append(sites, i)
	}
	return sites
}

// TwoQubitOps returns the operators at the two sites of a component such as "XZ".
func TwoQubitOps(component string) ([2]string, error) {
	var ops [2]string
	if len(component) != 2 {
		return ops, errors.Errorf("2q component %q", component)
	}
	for i := range 2 {
		switch axis := component[i]; axis {
		case 'X', 'Y', 'Z':
			ops[i] = "S" + strings.ToLower(string(axis))
		default:
			return ops, errors.Errorf("2q component %q", component)
		}
	}
	return ops, nil
}
