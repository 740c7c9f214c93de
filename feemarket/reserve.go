package feemarket

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rollupgas/feemarket/gas"
	"github.com/rollupgas/feemarket/params"
)

var (
	// ErrGasPriceTooHigh rejects a transaction whose declared gas limit can
	// no longer be afforded at the current price. The user's signed
	// parameters are stale; they can resubmit with a higher max fee.
	ErrGasPriceTooHigh = errors.New("current gas price exceeds max fee for declared gas limit")

	// ErrInsufficientFunds rejects a payer who cannot cover the worst-case
	// cost of the transaction.
	ErrInsufficientFunds = errors.New("insufficient funds to cover max fee")

	// ErrInsufficientFundsForPreChecks rejects a payer below the minimal
	// floor needed to pay for pre-execution checks. The sequencer should
	// have filtered this transaction and is penalized for including it.
	ErrInsufficientFundsForPreChecks = errors.New("insufficient funds for pre-execution checks")

	// ErrWrongChainID rejects a transaction signed for another chain. This
	// is detectable statelessly, so including it is a slashable sequencer
	// fault.
	ErrWrongChainID = errors.New("wrong chain id")

	// ErrGasLimitTooHigh rejects a declared gas limit above the per-tx
	// ceiling.
	ErrGasLimitTooHigh = errors.New("gas limit exceeds per-transaction ceiling")
)

// TxGasDetails are the fee parameters a transaction is submitted with. They
// are parsed and structurally validated upstream and immutable here.
type TxGasDetails struct {
	// MaxFee is the scalar funds ceiling the payer is willing to spend.
	MaxFee uint64

	// MaxPriorityFeeBips caps the sequencer tip at this many basis points
	// of the base fee.
	MaxPriorityFeeBips uint32

	// GasLimit optionally bounds consumption per dimension. When nil the
	// transaction is metered against funds alone.
	GasLimit *gas.Vector

	ChainID uint64
}

// Reservation provisionally locks funds against a payer before execution.
// It is consumed exactly once by settlement and never persisted.
type Reservation struct {
	Payer         common.Address
	FundsReserved uint64
	Details       TxGasDetails
}

// Reserve runs the stateful pre-validation of a transaction: admissibility
// of its gas parameters at the frozen block price, and affordability against
// the payer's balance. The actual balance lock is the ledger's job; this
// only computes the amount.
func Reserve(
	cfg *params.FeeConfig,
	details TxGasDetails,
	price gas.Vector,
	payer common.Address,
	balance uint64,
) (*Reservation, error) {
	if details.ChainID != cfg.ChainID {
		return nil, ErrWrongChainID
	}

	if details.GasLimit != nil {
		limit := *details.GasLimit
		if !limit.FitsIn(cfg.TxGasCeiling) {
			return nil, ErrGasLimitTooHigh
		}
		cost, err := limit.Cost(price)
		if err != nil {
			return nil, err
		}
		if cost > details.MaxFee {
			return nil, ErrGasPriceTooHigh
		}
	}

	if balance < cfg.PreCheckFloor {
		return nil, ErrInsufficientFundsForPreChecks
	}

	// Without a gas limit, execution may consume up to MaxFee, so the payer
	// must cover it in full. With a limit, the worst case is the limit's
	// cost, which was just checked against MaxFee.
	fundsToReserve := details.MaxFee
	if balance < details.MaxFee {
		if details.GasLimit == nil {
			return nil, ErrInsufficientFunds
		}
		worstCase, err := details.GasLimit.Cost(price)
		if err != nil {
			return nil, err
		}
		if balance < worstCase {
			return nil, ErrInsufficientFunds
		}
		fundsToReserve = balance
	}

	return &Reservation{
		Payer:         payer,
		FundsReserved: fundsToReserve,
		Details:       details,
	}, nil
}
