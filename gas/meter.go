package gas

import "errors"

// ErrOutOfGas signals that a transaction exhausted its gas budget. The
// transaction reverts and forfeits its reservation; block processing
// continues with the next transaction.
var ErrOutOfGas = errors.New("out of gas")

// Meter tracks the remaining gas budget of a single transaction. It is the
// only component allowed to mutate the budget. A meter is created fresh per
// transaction and never reused.
//
// A meter runs in one of two modes. In vector mode the budget is the
// transaction's declared multi-dimensional gas limit. In funds mode (used
// when no gas limit was declared) the budget is the reserved scalar funds,
// and every charge is converted through the price frozen at block start.
//
// Once a charge fails the meter is exhausted: all further charges fail with
// ErrOutOfGas and the consumed amount is pinned to the full budget, matching
// the no-refund policy for out-of-gas transactions.
type Meter struct {
	price Vector

	// vector mode
	limit     Vector
	remaining Vector

	// funds mode
	fundsMode  bool
	fundsLimit uint64
	fundsLeft  uint64

	used      Vector // total gas charged, fed back to the oracle
	exhausted bool
}

// NewMeter returns a vector-mode meter with the given budget, priced at the
// block's frozen price.
func NewMeter(limit Vector, price Vector) *Meter {
	return &Meter{price: price, limit: limit, remaining: limit}
}

// NewFundsMeter returns a funds-mode meter with the given scalar budget.
func NewFundsMeter(funds uint64, price Vector) *Meter {
	return &Meter{price: price, fundsMode: true, fundsLimit: funds, fundsLeft: funds}
}

// Charge deducts amount from the remaining budget. It returns ErrOutOfGas if
// the budget cannot cover the amount, after which the meter is exhausted for
// good. ErrGasOverflow is returned only on broken dimension magnitudes and
// must abort the block.
func (m *Meter) Charge(amount Vector) error {
	if m.exhausted {
		return ErrOutOfGas
	}
	if m.fundsMode {
		cost, err := amount.Cost(m.price)
		if err != nil {
			return err
		}
		if cost > m.fundsLeft {
			m.exhaust()
			return ErrOutOfGas
		}
		m.fundsLeft -= cost
	} else {
		diff, ok := m.remaining.CheckedSub(amount)
		if !ok {
			m.exhaust()
			return ErrOutOfGas
		}
		m.remaining = diff
	}
	used, overflow := m.used.SafeAdd(amount)
	if overflow {
		return ErrGasOverflow
	}
	m.used = used
	return nil
}

// ChargeAccess charges for a state access: warmCost if the key was already
// touched earlier in the block, coldCost otherwise. Warm costs are strictly
// cheaper than cold costs, so bundling frequently co-accessed data maximizes
// warm hits.
func (m *Meter) ChargeAccess(warm bool, coldCost, warmCost Vector) error {
	if warm {
		return m.Charge(warmCost)
	}
	return m.Charge(coldCost)
}

func (m *Meter) exhaust() {
	m.exhausted = true
	// No refund on exhaustion: the entire budget counts as consumed. In
	// vector mode the used vector is pinned to the declared limit. Funds
	// mode has no declared vector to pin to, so used keeps the gas actually
	// charged: the payer forfeits funds (ConsumedFunds returns the full
	// budget) while the gas fed back to the oracle stays the real
	// resource consumption.
	if m.fundsMode {
		m.fundsLeft = 0
	} else {
		m.used = m.limit
		m.remaining = Vector{}
	}
}

// Exhausted reports whether the meter ran out of gas.
func (m *Meter) Exhausted() bool {
	return m.exhausted
}

// Remaining returns the remaining multi-dimensional budget. In funds mode it
// is always zero; use RemainingFunds instead.
func (m *Meter) Remaining() Vector {
	return m.remaining
}

// RemainingFunds returns the scalar value of the remaining budget at the
// meter's price, for refund calculations.
func (m *Meter) RemainingFunds() (uint64, error) {
	if m.fundsMode {
		return m.fundsLeft, nil
	}
	return m.remaining.Cost(m.price)
}

// ConsumedFunds returns the scalar value of the gas consumed so far. For an
// exhausted funds-mode meter this is the full budget.
func (m *Meter) ConsumedFunds() (uint64, error) {
	if m.fundsMode {
		return m.fundsLimit - m.fundsLeft, nil
	}
	consumed := m.limit.SaturatingSub(m.remaining)
	return consumed.Cost(m.price)
}

// GasUsed returns the multi-dimensional gas consumed so far. For an
// exhausted vector-mode meter this is the full limit; for an exhausted
// funds-mode meter it is the gas actually charged before exhaustion, since
// no vector bound was declared (see exhaust).
func (m *Meter) GasUsed() Vector {
	return m.used
}

// Price returns the block price the meter was created with.
func (m *Meter) Price() Vector {
	return m.price
}
