// Package pauli implements the super-spin algebra of a vectorized qubit density operator.
//
// A qubit density operator |a><b| is mapped to a vector in a 4 dimensional local space,
// whose basis is ordered as UU=|up><up|, DU=|down><up|, UD=|up><down|, DD=|down><down|.
// Multiplying the density operator by a Pauli matrix from either side is then a 4x4 matrix acting on this space.
// By convention, operators named without a leading underscore multiply the density operator from the right, rho @ O,
// whereas those named with a leading underscore multiply from the left, O @ rho.
package pauli

import (
	"fmt"
	"math"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"
)

// Dim is the dimension of the local super-spin space.
const Dim = 4

// Labels of the super-spin basis.
const (
	UU = iota
	DU
	UD
	DD
)

var (
	// ErrUnrecognizedOperator is returned for operator names outside the catalogue.
	ErrUnrecognizedOperator = errors.New("unrecognized operator")
	// ErrUnimplementedOperator is returned for catalogued operators without a defined matrix.
	ErrUnimplementedOperator = errors.New("unimplemented operator")
	// ErrStateNotRecognized is returned for unknown state labels.
	ErrStateNotRecognized = errors.New("state not recognized")
)

// Label returns the super-spin label of |ket><bra|, where 0 denotes spin up and 1 spin down.
func Label(ket, bra int) int {
	return 2*bra + ket
}

// Swap returns the label of the transposed basis element, exchanging DU and UD.
func Swap(label int) int {
	switch label {
	case DU:
		return UD
	case UD:
		return DU
	default:
		return label
	}
}

// State parses the labels "uu", "du", "ud", and "dd".
func State(s string) (int, error) {
	switch s {
	case "uu":
		return UU, nil
	case "du":
		return DU, nil
	case "ud":
		return UD, nil
	case "dd":
		return DD, nil
	}
	return -1, errors.Wrap(ErrStateNotRecognized, s)
}

// An Op is a local super-operator.
type Op int

const (
	Id Op = iota
	Sz
	Splus
	Sminus
	Sx
	Sy
	LSz
	LSplus
	LSminus
	LSx
	LSy
	ProjUp
	ProjDn
	LProjUp
	LProjDn
	SzSz
	SxSx
	LSminusSplus
	LSplusSminus
	Hadamard
	LHadamard
	SqrtX
	LSqrtX
	numOps
)

var names = [numOps]string{
	Id:           "Id",
	Sz:           "Sz",
	Splus:        "S+",
	Sminus:       "S-",
	Sx:           "Sx",
	Sy:           "Sy",
	LSz:          "_Sz",
	LSplus:       "_S+",
	LSminus:      "_S-",
	LSx:          "_Sx",
	LSy:          "_Sy",
	ProjUp:       "projUp",
	ProjDn:       "projDn",
	LProjUp:      "_projUp",
	LProjDn:      "_projDn",
	SzSz:         "Sz_Sz",
	SxSx:         "Sx_Sx",
	LSminusSplus: "_S-S+",
	LSplusSminus: "_S+S-",
	Hadamard:     "H",
	LHadamard:    "_H",
	SqrtX:        "SqrtX",
	LSqrtX:       "_SqrtX",
}

var aliases = map[string]Op{
	"Su": ProjUp,
	"Sd": ProjDn,
}

// Parse returns the operator of the given name.
func Parse(name string) (Op, error) {
	for op, n := range names {
		if n == name {
			return Op(op), nil
		}
	}
	if op, ok := aliases[name]; ok {
		return op, nil
	}
	return -1, errors.Wrap(ErrUnrecognizedOperator, name)
}

// Ops returns all catalogued operators.
func Ops() []Op {
	ops := make([]Op, 0, numOps)
	for op := range numOps {
		ops = append(ops, op)
	}
	return ops
}

func (op Op) String() string {
	if op < 0 || op >= numOps {
		return fmt.Sprintf("Op(%d)", int(op))
	}
	return names[op]
}

// Dual returns the operator that multiplies from the opposite side by the adjoint.
// That is, if op maps rho to rho @ O, Dual maps rho to O.H @ rho, and vice versa.
// The matrices of the two satisfy Dual = P @ conj(op) @ P, where P exchanges DU and UD.
func (op Op) Dual() Op {
	switch op {
	case Sz:
		return LSz
	case LSz:
		return Sz
	case Sx:
		return LSx
	case LSx:
		return Sx
	case Sy:
		return LSy
	case LSy:
		return Sy
	case Splus:
		return LSminus
	case LSminus:
		return Splus
	case Sminus:
		return LSplus
	case LSplus:
		return Sminus
	case ProjUp:
		return LProjUp
	case LProjUp:
		return ProjUp
	case ProjDn:
		return LProjDn
	case LProjDn:
		return ProjDn
	case Hadamard:
		return LHadamard
	case LHadamard:
		return Hadamard
	case SqrtX:
		return LSqrtX
	case LSqrtX:
		return SqrtX
	}
	return op
}

// entry is the matrix element M[out][in].
type entry struct {
	out, in int
	v       complex64
}

var (
	sqrtHalf = complex64(complex(math.Sqrt(0.5), 0))
	halfP    = complex64(0.5 + 0.5i)
	halfM    = complex64(0.5 - 0.5i)
)

var matrices = map[Op][]entry{
	Id: {{UU, UU, 1}, {DU, DU, 1}, {UD, UD, 1}, {DD, DD, 1}},

	Sz:     {{UU, UU, 1}, {DU, DU, 1}, {UD, UD, -1}, {DD, DD, -1}},
	Splus:  {{UD, UU, 1}, {DD, DU, 1}},
	Sminus: {{DU, DD, 1}, {UU, UD, 1}},
	Sx:     {{UD, UU, 1}, {DD, DU, 1}, {DU, DD, 1}, {UU, UD, 1}},
	Sy:     {{UD, UU, -1i}, {DD, DU, -1i}, {DU, DD, 1i}, {UU, UD, 1i}},

	LSz:     {{UU, UU, 1}, {DU, DU, -1}, {UD, UD, 1}, {DD, DD, -1}},
	LSplus:  {{UD, DD, 1}, {UU, DU, 1}},
	LSminus: {{DU, UU, 1}, {DD, UD, 1}},
	LSx:     {{UD, DD, 1}, {UU, DU, 1}, {DU, UU, 1}, {DD, UD, 1}},
	LSy:     {{UD, DD, -1i}, {UU, DU, -1i}, {DU, UU, 1i}, {DD, UD, 1i}},

	ProjUp:  {{UU, UU, 1}, {DU, DU, 1}},
	ProjDn:  {{UD, UD, 1}, {DD, DD, 1}},
	LProjUp: {{UU, UU, 1}, {UD, UD, 1}},
	LProjDn: {{DD, DD, 1}, {DU, DU, 1}},

	SzSz:         {{UU, UU, 1}, {DU, DU, -1}, {UD, UD, -1}, {DD, DD, 1}},
	LSminusSplus: {{DD, UU, 1}},
	LSplusSminus: {{UU, DD, 1}},

	Hadamard: {
		{UD, UU, sqrtHalf}, {DD, DU, sqrtHalf}, {DU, DD, sqrtHalf}, {UU, UD, sqrtHalf},
		{UU, UU, sqrtHalf}, {DU, DU, sqrtHalf}, {UD, UD, -sqrtHalf}, {DD, DD, -sqrtHalf},
	},
	LHadamard: {
		{UU, UU, sqrtHalf}, {DU, DU, -sqrtHalf}, {UD, UD, sqrtHalf}, {DD, DD, -sqrtHalf},
		{UD, DD, sqrtHalf}, {UU, DU, sqrtHalf}, {DU, UU, sqrtHalf}, {DD, UD, sqrtHalf},
	},

	SqrtX: {
		{UU, UU, halfP}, {DU, DU, halfP}, {UD, UD, halfP}, {DD, DD, halfP},
		{UD, UU, halfM}, {DD, DU, halfM}, {DU, DD, halfM}, {UU, UD, halfM},
	},
	LSqrtX: {
		{UU, UU, halfM}, {DU, DU, halfM}, {UD, UD, halfM}, {DD, DD, halfM},
		{UD, DD, halfP}, {UU, DU, halfP}, {DU, UU, halfP}, {DD, UD, halfP},
	},
}

// Matrix returns the 4x4 matrix M[out][in] of op.
func (op Op) Matrix() (*tensor.Dense, error) {
	if op < 0 || op >= numOps {
		return nil, errors.Wrap(ErrUnrecognizedOperator, op.String())
	}
	entries, ok := matrices[op]
	if !ok {
		return nil, errors.Wrap(ErrUnimplementedOperator, op.String())
	}

	m := tensor.Zeros(Dim, Dim)
	for _, e := range entries {
		m.SetAt([]int{e.out, e.in}, e.v)
	}
	return m, nil
}

// Matrix returns the matrix of the operator with the given name.
func Matrix(name string) (*tensor.Dense, error) {
	op, err := Parse(name)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	m, err := op.Matrix()
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return m, nil
}
