// Package feemarket implements the pricing, metering, and settlement core of
// the rollup: per-dimension price adjustment, pre-execution fee reservation,
// and post-execution settlement between the payer, the burn sink, the prover
// pool, and the sequencer.
package feemarket

import (
	"errors"
	"fmt"
	"math"

	"github.com/holiman/uint256"

	"github.com/rollupgas/feemarket/gas"
	"github.com/rollupgas/feemarket/params"
)

// ErrGasUsedAboveCeiling reports a protocol violation: a block consumed more
// than twice the gas target in some dimension. Block building must bound
// usage before it ever reaches the oracle.
var ErrGasUsedAboveCeiling = errors.New("block gas used exceeds twice the target")

// Oracle maintains the multi-dimensional gas price and the slowly varying
// gas target. The price moves once per block; within a block every
// transaction sees the snapshot taken at block start, so transaction cost is
// predictable regardless of position in the block.
//
// The oracle is owned by the block-processing driver and is not safe for
// concurrent use; blocks are processed sequentially by protocol rule.
type Oracle struct {
	cfg    *params.FeeConfig
	price  gas.Vector
	target gas.Vector
}

// NewOracle seeds the oracle from the chain configuration, clamping the
// genesis price into the configured bounds.
func NewOracle(cfg *params.FeeConfig) (*Oracle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &Oracle{cfg: cfg, target: cfg.GasTarget}
	for i := gas.ResourceKind(0); i < gas.NumResourceKind; i++ {
		o.price[i] = clamp(cfg.InitialPrice[i], cfg.MinPrice[i], cfg.MaxPrice[i])
	}
	return o, nil
}

// BeginBlock returns the price snapshot for the upcoming block. The snapshot
// is immutable for the whole block.
func (o *Oracle) BeginBlock() gas.Vector {
	return o.price
}

// EndBlock adjusts the price for the next block from the gas consumed in the
// finished block. Each dimension moves independently:
//
//	delta = price * |used - target| / (target * AdjustDenom)
//	next  = clamp(price ± delta, MinPrice, MaxPrice)
//
// so a block exactly at target leaves the price unchanged and a block at the
// 2x ceiling moves it by the full 1/AdjustDenom step. Division truncates.
func (o *Oracle) EndBlock(gasUsed gas.Vector) error {
	for i := gas.ResourceKind(0); i < gas.NumResourceKind; i++ {
		if gasUsed[i] > o.target[i] && gasUsed[i]-o.target[i] > o.target[i] {
			return fmt.Errorf("%w: dimension %s used %d, target %d",
				ErrGasUsedAboveCeiling, i, gasUsed[i], o.target[i])
		}
	}
	var next gas.Vector
	for i := gas.ResourceKind(0); i < gas.NumResourceKind; i++ {
		next[i] = o.adjustDimension(i, gasUsed[i])
	}
	o.price = next
	return nil
}

func (o *Oracle) adjustDimension(i gas.ResourceKind, used uint64) uint64 {
	price, target := o.price[i], o.target[i]

	var diff uint64
	up := used > target
	if up {
		diff = used - target
	} else {
		diff = target - used
	}

	// price*diff fits in 128 bits and diff <= target, so the quotient fits
	// in a uint64.
	num := new(uint256.Int).SetUint64(price)
	num.Mul(num, uint256.NewInt(diff))
	den := new(uint256.Int).SetUint64(target)
	den.Mul(den, uint256.NewInt(o.cfg.AdjustDenom))
	delta := num.Div(num, den).Uint64()

	var adjusted uint64
	if up {
		if delta > math.MaxUint64-price {
			adjusted = math.MaxUint64
		} else {
			adjusted = price + delta
		}
	} else {
		adjusted = price - delta
	}
	return clamp(adjusted, o.cfg.MinPrice[i], o.cfg.MaxPrice[i])
}

// SetTarget replaces the gas target. Target changes come from throughput
// governance outside this core and must only be applied between blocks.
func (o *Oracle) SetTarget(target gas.Vector) error {
	for i := gas.ResourceKind(0); i < gas.NumResourceKind; i++ {
		if target[i] == 0 {
			return fmt.Errorf("gas target must be positive: dimension %s", i)
		}
	}
	o.target = target
	return nil
}

// Price returns the current price without starting a block.
func (o *Oracle) Price() gas.Vector {
	return o.price
}

// Target returns the current gas target.
func (o *Oracle) Target() gas.Vector {
	return o.target
}

// BlockGasCeiling returns the hard per-block usage bound, twice the target.
func (o *Oracle) BlockGasCeiling() gas.Vector {
	var ceil gas.Vector
	for i := gas.ResourceKind(0); i < gas.NumResourceKind; i++ {
		if o.target[i] > math.MaxUint64/2 {
			ceil[i] = math.MaxUint64
		} else {
			ceil[i] = 2 * o.target[i]
		}
	}
	return ceil
}

func clamp(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
