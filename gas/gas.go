// Package gas defines multi-dimensional gas for a rollup state-transition
// pipeline.
//
// Gas is tracked separately per resource so that each resource can be priced
// and targeted independently. The tracked resources are native computation,
// proving (ZK) computation, storage access, and data-availability throughput.
package gas

import (
	"errors"
	"math"

	"github.com/holiman/uint256"
)

// ResourceKind represents a dimension of the multi-dimensional gas.
type ResourceKind uint8

const (
	ResourceKindComputation ResourceKind = iota
	ResourceKindProving
	ResourceKindStorage
	ResourceKindDataAvailability
	NumResourceKind
)

var resourceKindStrings = [NumResourceKind]string{
	"computation",
	"proving",
	"storage",
	"data_availability",
}

func (k ResourceKind) String() string {
	if k >= NumResourceKind {
		return "unknown"
	}
	return resourceKindStrings[k]
}

// ErrGasOverflow signals that a gas computation exceeded the integer range.
// Dimension magnitudes are chosen so this cannot happen on valid chains, so
// it is treated as a fatal configuration error: the enclosing block must be
// aborted, not just the transaction.
var ErrGasOverflow = errors.New("gas amount overflows uint64")

// Vector tracks a gas amount for each resource separately. A Vector is also
// used as a price ("funds per unit gas" in each dimension), in which case
// Cost converts gas into funds.
type Vector [NumResourceKind]uint64

// NewVector returns a vector holding amount in the given dimension only.
func NewVector(kind ResourceKind, amount uint64) Vector {
	var v Vector
	v[kind] = amount
	return v
}

func ComputationGas(amount uint64) Vector {
	return NewVector(ResourceKindComputation, amount)
}

func ProvingGas(amount uint64) Vector {
	return NewVector(ResourceKindProving, amount)
}

func StorageGas(amount uint64) Vector {
	return NewVector(ResourceKindStorage, amount)
}

func DataAvailabilityGas(amount uint64) Vector {
	return NewVector(ResourceKindDataAvailability, amount)
}

// Pair is a resource kind with a gas amount, used to construct vectors.
type Pair struct {
	Kind   ResourceKind
	Amount uint64
}

func VectorFromPairs(pairs ...Pair) Vector {
	var v Vector
	for _, p := range pairs {
		v[p.Kind] = p.Amount
	}
	return v
}

func (v Vector) Get(kind ResourceKind) uint64 {
	return v[kind]
}

// SingleGas returns the sum over all dimensions, saturating at MaxUint64.
// It is a diagnostic aggregate, not a funds amount.
func (v Vector) SingleGas() uint64 {
	var total uint64
	for i := ResourceKind(0); i < NumResourceKind; i++ {
		if v[i] > math.MaxUint64-total {
			return math.MaxUint64
		}
		total += v[i]
	}
	return total
}

// SafeAdd returns the component-wise sum x+v. The second return value is
// true if any component overflowed; callers must treat overflow as fatal.
func (v Vector) SafeAdd(x Vector) (Vector, bool) {
	var sum Vector
	for i := ResourceKind(0); i < NumResourceKind; i++ {
		if v[i] > math.MaxUint64-x[i] {
			return Vector{}, true
		}
		sum[i] = v[i] + x[i]
	}
	return sum, false
}

// SaturatingSub returns the component-wise difference v-x, clamped at zero
// per component.
func (v Vector) SaturatingSub(x Vector) Vector {
	var diff Vector
	for i := ResourceKind(0); i < NumResourceKind; i++ {
		if v[i] > x[i] {
			diff[i] = v[i] - x[i]
		}
	}
	return diff
}

// CheckedSub returns the component-wise difference v-x. The second return
// value is false if any component would go negative; callers use this to
// detect gas exhaustion deterministically.
func (v Vector) CheckedSub(x Vector) (Vector, bool) {
	var diff Vector
	for i := ResourceKind(0); i < NumResourceKind; i++ {
		if v[i] < x[i] {
			return Vector{}, false
		}
		diff[i] = v[i] - x[i]
	}
	return diff, true
}

// Cost returns the scalar funds amount sum(v[i]*price[i]). The accumulation
// uses a 256-bit intermediate so multiply-then-sum cannot wrap; if the total
// exceeds MaxUint64 the result is ErrGasOverflow.
func (v Vector) Cost(price Vector) (uint64, error) {
	var term, total uint256.Int
	for i := ResourceKind(0); i < NumResourceKind; i++ {
		term.SetUint64(v[i])
		term.Mul(&term, uint256.NewInt(price[i]))
		total.Add(&total, &term)
	}
	if !total.IsUint64() {
		return 0, ErrGasOverflow
	}
	return total.Uint64(), nil
}

// FitsIn reports whether v[i] <= bound[i] for every dimension. Vectors are
// only partially ordered, so !a.FitsIn(b) does not imply b.FitsIn(a).
func (v Vector) FitsIn(bound Vector) bool {
	for i := ResourceKind(0); i < NumResourceKind; i++ {
		if v[i] > bound[i] {
			return false
		}
	}
	return true
}

// IsZero reports whether every component is zero.
func (v Vector) IsZero() bool {
	return v == Vector{}
}
