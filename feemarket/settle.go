package feemarket

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/rollupgas/feemarket/gas"
	"github.com/rollupgas/feemarket/ledger"
	"github.com/rollupgas/feemarket/params"
)

const bipsDenominator = 10_000

// Settlement is the final accounting of one transaction. The invariants
//
//	BaseFeePaid + PriorityFeePaid + Refund == FundsReserved
//	Burned + ProverReward == BaseFeePaid
//	SequencerReward == PriorityFeePaid
//
// hold exactly: all divisions truncate and every remainder lands in Refund.
type Settlement struct {
	BaseFeePaid     uint64
	PriorityFeePaid uint64
	Refund          uint64
	Burned          uint64
	ProverReward    uint64
	SequencerReward uint64

	// GasUsed is the multi-dimensional consumption, fed back to the oracle
	// at block end.
	GasUsed gas.Vector

	// OutOfGas marks a transaction that exhausted its meter and forfeited
	// its whole reservation.
	OutOfGas bool
}

// Accountant drives one transaction's gas accounting: it owns the meter
// seeded from the reservation and computes the settlement when execution
// finishes. Settle cannot fail; all inputs were validated during
// reservation.
type Accountant struct {
	res   *Reservation
	meter *gas.Meter
	cfg   *params.FeeConfig
}

// NewAccountant seeds a fresh meter from the reservation: a vector meter
// bounded by the declared gas limit, or a funds meter bounded by the
// reservation when no limit was declared.
func NewAccountant(res *Reservation, price gas.Vector, cfg *params.FeeConfig) *Accountant {
	var meter *gas.Meter
	if res.Details.GasLimit != nil {
		meter = gas.NewMeter(*res.Details.GasLimit, price)
	} else {
		meter = gas.NewFundsMeter(res.FundsReserved, price)
	}
	return &Accountant{res: res, meter: meter, cfg: cfg}
}

// Meter returns the transaction's meter for the execution layer to charge.
func (a *Accountant) Meter() *gas.Meter {
	return a.meter
}

// Settle computes the final split of the reserved funds. An exhausted meter
// forfeits the entire reservation: the full reserved amount becomes the base
// fee, so the tip and refund are zero and the burn/prover split applies to
// everything.
func (a *Accountant) Settle() *Settlement {
	reserved := a.res.FundsReserved

	var baseFee uint64
	if a.meter.Exhausted() {
		baseFee = reserved
	} else {
		var err error
		baseFee, err = a.meter.ConsumedFunds()
		if err != nil || baseFee > reserved {
			// Cannot happen for budgets that passed reservation. Pin to the
			// reservation so conservation holds even against a broken meter.
			baseFee = reserved
		}
	}

	priorityFee := priorityFeeFor(baseFee, a.res.Details.MaxPriorityFeeBips, reserved)
	refund := reserved - baseFee - priorityFee
	burned := burnShare(baseFee, a.cfg.BurnPercent)

	return &Settlement{
		BaseFeePaid:     baseFee,
		PriorityFeePaid: priorityFee,
		Refund:          refund,
		Burned:          burned,
		ProverReward:    baseFee - burned,
		SequencerReward: priorityFee,
		GasUsed:         a.meter.GasUsed(),
		OutOfGas:        a.meter.Exhausted(),
	}
}

// priorityFeeFor returns min(bips*baseFee/10_000, reserved-baseFee): the tip
// is capped both by its basis-point rate and by whatever funds remain after
// the base fee.
func priorityFeeFor(baseFee uint64, bips uint32, reserved uint64) uint64 {
	tip := new(uint256.Int).SetUint64(baseFee)
	tip.Mul(tip, uint256.NewInt(uint64(bips)))
	tip.Div(tip, uint256.NewInt(bipsDenominator))

	headroom := reserved - baseFee
	if !tip.IsUint64() || tip.Uint64() > headroom {
		return headroom
	}
	return tip.Uint64()
}

// burnShare returns floor(baseFee*percent/100).
func burnShare(baseFee, percent uint64) uint64 {
	b := new(uint256.Int).SetUint64(baseFee)
	b.Mul(b, uint256.NewInt(percent))
	b.Div(b, uint256.NewInt(100))
	return b.Uint64()
}

// Addresses names the settlement beneficiaries.
type Addresses struct {
	BurnSink   common.Address
	ProverPool common.Address
	Sequencer  common.Address
}

// Apply distributes the settled funds on the ledger. The payer was already
// debited for the full reservation when it was locked, so applying a
// settlement only credits: the burn sink, the prover pool, the sequencer,
// and the payer's refund. By the conservation invariant the four credits sum
// to exactly the locked amount.
func (s *Settlement) Apply(l ledger.Ledger, payer common.Address, to Addresses) {
	l.Credit(to.BurnSink, s.Burned)
	l.Credit(to.ProverPool, s.ProverReward)
	l.Credit(to.Sequencer, s.SequencerReward)
	l.Credit(payer, s.Refund)
}
