package lindblad

import (
	"fmt"
	"slices"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"

	"github.com/haggaila/lindbladmpo/pauli"
)

// A SiteOp is a super-operator acting on a 1-based site.
type SiteOp struct {
	Op   pauli.Op
	Site int
}

// A Term is a product of super-operators on distinct sites, multiplied by a coefficient.
type Term struct {
	Coef complex64
	Ops  []SiteOp
}

func (t Term) String() string {
	s := fmt.Sprintf("%v", t.Coef)
	for _, o := range t.Ops {
		s += fmt.Sprintf(" %v(%d)", o.Op, o.Site)
	}
	return s
}

// Rates are the rates of the dissipative channels of a qubit.
type Rates struct {
	// Plus is the rate of the jump operator S+, which pumps the qubit up.
	Plus float64
	// Minus is the rate of the jump operator S-, which relaxes the qubit down.
	Minus float64
	// Dephasing is the rate of the jump operator Sz.
	Dephasing float64
	// BitFlip is the rate of the jump operator Sx.
	BitFlip float64
}

// A Field is a local magnetic field h.x Sx + h.y Sy + h.z Sz.
type Field struct {
	X, Y, Z float64
}

// A Coupling is an interaction XX Sx Sx + YY Sy Sy + ZZ Sz Sz between two neighbouring qubits.
type Coupling struct {
	XX, YY, ZZ float64
}

// A Lindbladian is the generator L of d(rho)/dt = -i L(rho), accumulated as a sum of terms.
type Lindbladian struct {
	n     int
	terms []Term
}

// NewLindbladian returns an empty Lindbladian of n qubits.
func NewLindbladian(n int) *Lindbladian {
	return &Lindbladian{n: n}
}

// Terms returns the accumulated terms.
func (l *Lindbladian) Terms() []Term {
	return slices.Clone(l.terms)
}

// Add adds the term coef * ops.
// ops acts either on a single site, or on two neighbouring sites.
func (l *Lindbladian) Add(coef complex64, ops ...SiteOp) error {
	t := Term{Coef: coef, Ops: slices.Clone(ops)}
	if err := l.check(t); err != nil {
		return errors.Wrap(err, "")
	}
	l.terms = append(l.terms, t)
	return nil
}

func (l *Lindbladian) check(t Term) error {
	switch len(t.Ops) {
	case 1:
	case 2:
		if d := t.Ops[1].Site - t.Ops[0].Site; d != 1 && d != -1 {
			return errors.Errorf("not nearest neighbours %v", t)
		}
	default:
		return errors.Errorf("%v", t)
	}
	for _, o := range t.Ops {
		if err := checkSite(o.Site, l.n); err != nil {
			return errors.Wrap(err, "")
		}
		if _, err := o.Op.Matrix(); err != nil {
			return errors.Wrap(err, "")
		}
	}
	return nil
}

// AddLocalDissipator adds the dissipator of rates at the 1-based site.
// Each channel of jump operator J and rate g contributes g (J rho J.H - 0.5 J.H J rho - 0.5 rho J.H J), which is i g times the listed terms.
// Either all terms are added, or none of them upon error.
func (l *Lindbladian) AddLocalDissipator(rates Rates, site int) error {
	for _, g := range []float64{rates.Plus, rates.Minus, rates.Dephasing, rates.BitFlip} {
		if g < 0 {
			return errors.Errorf("negative rate %#v", rates)
		}
	}

	channels := []struct {
		g     float64
		jump  pauli.Op
		left  pauli.Op
		right pauli.Op
	}{
		{g: rates.Minus, jump: pauli.LSminusSplus, left: pauli.LProjUp, right: pauli.ProjUp},
		{g: rates.Plus, jump: pauli.LSplusSminus, left: pauli.LProjDn, right: pauli.ProjDn},
		{g: rates.Dephasing, jump: pauli.SzSz, left: pauli.Id, right: pauli.Id},
		{g: rates.BitFlip, jump: pauli.SxSx, left: pauli.Id, right: pauli.Id},
	}
	terms := make([]Term, 0, 3*len(channels))
	for _, c := range channels {
		if c.g == 0 {
			continue
		}
		ig := complex64(complex(0, c.g))
		terms = append(terms,
			Term{Coef: ig, Ops: []SiteOp{{Op: c.jump, Site: site}}},
			Term{Coef: -ig / 2, Ops: []SiteOp{{Op: c.left, Site: site}}},
			Term{Coef: -ig / 2, Ops: []SiteOp{{Op: c.right, Site: site}}},
		)
	}

	for _, t := range terms {
		if err := l.check(t); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%#v %d", rates, site))
		}
	}
	l.terms = append(l.terms, terms...)
	return nil
}

// AddLocalField adds the commutator -i[H, rho] of the Hamiltonian H = f.X Sx + f.Y Sy + f.Z Sz at the 1-based site.
func (l *Lindbladian) AddLocalField(f Field, site int) error {
	if err := checkSite(site, l.n); err != nil {
		return errors.Wrap(err, "")
	}
	for _, c := range []struct {
		h           float64
		left, right pauli.Op
	}{
		{h: f.X, left: pauli.LSx, right: pauli.Sx},
		{h: f.Y, left: pauli.LSy, right: pauli.Sy},
		{h: f.Z, left: pauli.LSz, right: pauli.Sz},
	} {
		if c.h == 0 {
			continue
		}
		h := complex64(complex(c.h, 0))
		l.terms = append(l.terms,
			Term{Coef: h, Ops: []SiteOp{{Op: c.left, Site: site}}},
			Term{Coef: -h, Ops: []SiteOp{{Op: c.right, Site: site}}},
		)
	}
	return nil
}

// AddCoupling adds the commutator -i[H, rho] of the interaction c between the neighbouring 1-based sites i and j.
func (l *Lindbladian) AddCoupling(c Coupling, i, j int) error {
	for _, s := range []int{i, j} {
		if err := checkSite(s, l.n); err != nil {
			return errors.Wrap(err, "")
		}
	}
	if d := j - i; d != 1 && d != -1 {
		return errors.Errorf("not nearest neighbours %d %d", i, j)
	}
	for _, cc := range []struct {
		v           float64
		left, right pauli.Op
	}{
		{v: c.XX, left: pauli.LSx, right: pauli.Sx},
		{v: c.YY, left: pauli.LSy, right: pauli.Sy},
		{v: c.ZZ, left: pauli.LSz, right: pauli.Sz},
	} {
		if cc.v == 0 {
			continue
		}
		v := complex64(complex(cc.v, 0))
		l.terms = append(l.terms,
			Term{Coef: v, Ops: []SiteOp{{Op: cc.left, Site: i}, {Op: cc.left, Site: j}}},
			Term{Coef: -v, Ops: []SiteOp{{Op: cc.right, Site: i}, {Op: cc.right, Site: j}}},
		)
	}
	return nil
}

// MPO returns the Lindbladian as a matrix product operator.
// The bulk tensor at each site is lower triangular in its bond indices: index 0 means all terms are complete,
// the last index means no term has started, and the indices in between carry the two-site terms crossing the bond.
// See Section 6.1 Matrix product operators, Ulrich Schollwock.
func (l *Lindbladian) MPO() ([]*tensor.Dense, error) {
	local := make([]*tensor.Dense, 0, l.n)
	for range l.n {
		local = append(local, tensor.Zeros(pauli.Dim, pauli.Dim))
	}
	// bonds[i] are the two-site terms between sites i and i+1, with Ops sorted by site.
	bonds := make([][]Term, max(l.n-1, 0))
	for _, t := range l.terms {
		switch len(t.Ops) {
		case 1:
			m, err := t.Ops[0].Op.Matrix()
			if err != nil {
				return nil, errors.Wrap(err, "")
			}
			local[t.Ops[0].Site-1].Add(t.Coef, m)
		case 2:
			ops := slices.Clone(t.Ops)
			slices.SortFunc(ops, func(a, b SiteOp) int { return a.Site - b.Site })
			bonds[ops[0].Site-1] = append(bonds[ops[0].Site-1], Term{Coef: t.Coef, Ops: ops})
		}
	}

	if l.n == 1 {
		w := tensor.Zeros(1, 1, pauli.Dim, pauli.Dim)
		setBlock(w, 0, 0, local[0], 1)
		return []*tensor.Dense{w}, nil
	}

	id, err := pauli.Id.Matrix()
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	ws := make([]*tensor.Dense, 0, l.n)
	for i := range l.n {
		leftD, rightD := 1, 1
		if i > 0 {
			leftD = 2 + len(bonds[i-1])
		}
		if i < l.n-1 {
			rightD = 2 + len(bonds[i])
		}
		const done = 0
		notStarted := leftD - 1

		w := tensor.Zeros(leftD, rightD, pauli.Dim, pauli.Dim)
		setBlock(w, notStarted, done, local[i], 1)
		if i > 0 {
			setBlock(w, done, done, id, 1)
			for k, t := range bonds[i-1] {
				m, err := t.Ops[1].Op.Matrix()
				if err != nil {
					return nil, errors.Wrap(err, "")
				}
				setBlock(w, 1+k, done, m, 1)
			}
		}
		if i < l.n-1 {
			setBlock(w, notStarted, rightD-1, id, 1)
			for k, t := range bonds[i] {
				m, err := t.Ops[0].Op.Matrix()
				if err != nil {
					return nil, errors.Wrap(err, "")
				}
				setBlock(w, notStarted, 1+k, m, t.Coef)
			}
		}
		ws = append(ws, w)
	}
	return ws, nil
}

// setBlock sets w[left, right] = c * m.
func setBlock(w *tensor.Dense, left, right int, m *tensor.Dense, c complex64) {
	for out := range pauli.Dim {
		for in := range pauli.Dim {
			w.SetAt([]int{left, right, out, in}, c*m.At(out, in))
		}
	}
}
