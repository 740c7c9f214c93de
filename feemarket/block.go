package feemarket

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/rollupgas/feemarket/gas"
	"github.com/rollupgas/feemarket/ledger"
	"github.com/rollupgas/feemarket/params"
)

// ErrBlockGasLimitReached rejects a transaction whose declared gas limit no
// longer fits the block's remaining allowance. The transaction itself may be
// valid in a later block.
var ErrBlockGasLimitReached = errors.New("transaction gas limit exceeds remaining block allowance")

// TxBody is a transaction's execution function. It charges every state
// access through the metered state it is handed; any error it returns
// reverts the transaction's state changes while its gas remains consumed.
type TxBody func(state *gas.MeteredState) error

// Tx is one transaction as seen by the fee core: the payer, the signed fee
// parameters, and the execution body.
type Tx struct {
	Payer   common.Address
	Details TxGasDetails
	Body    TxBody
}

// TxResult records the outcome of one transaction within a block.
type TxResult struct {
	Payer      common.Address
	Settlement *Settlement // nil if the transaction was rejected
	Rejected   error       // reservation error, nil if executed
	Fault      Fault
	ExecErr    error // body error of an executed-but-reverted transaction
}

// BlockResult aggregates a processed block.
type BlockResult struct {
	Number   uint64
	Price    gas.Vector
	GasUsed  gas.Vector
	Results  []TxResult
	Burned   uint64
	Prover   uint64
	SeqPay   uint64 // sequencer rewards
	SeqFines uint64 // sequencer penalties and slashes
}

// BlockProcessor drives blocks through the fee core in program order:
// price snapshot, sequential transaction processing against a shared
// touched-key set, then the end-of-block price adjustment. It is the
// consensus driver's boundary and is not safe for concurrent use; only
// cross-block pipelining on separate processors is permissible.
type BlockProcessor struct {
	cfg     *params.FeeConfig
	oracle  *Oracle
	ledger  ledger.Ledger
	store   gas.Store
	to      Addresses
	metrics *Metrics // optional
}

func NewBlockProcessor(
	cfg *params.FeeConfig,
	oracle *Oracle,
	l ledger.Ledger,
	store gas.Store,
	to Addresses,
) *BlockProcessor {
	return &BlockProcessor{cfg: cfg, oracle: oracle, ledger: l, store: store, to: to}
}

// SetMetrics attaches prometheus metrics; nil disables them.
func (p *BlockProcessor) SetMetrics(m *Metrics) {
	p.metrics = m
}

// ProcessBlock executes one block of transactions sequentially. Each
// transaction is reserved, executed against a meter, settled, and applied to
// the ledger before the next one begins; there is no abandon-and-retry path.
// A gas.ErrGasOverflow anywhere aborts the whole block.
func (p *BlockProcessor) ProcessBlock(number uint64, txs []*Tx) (*BlockResult, error) {
	price := p.oracle.BeginBlock()
	ceiling := p.oracle.BlockGasCeiling()
	touched := gas.NewAccessSet()

	res := &BlockResult{Number: number, Price: price, Results: make([]TxResult, 0, len(txs))}

	// The block gas pool accumulates declared limits, so the worst-case
	// usage of every admitted vector-mode transaction fits the ceiling.
	var pool gas.Vector

	for i, tx := range txs {
		poolBefore := pool
		if tx.Details.GasLimit != nil {
			reserved, overflow := pool.SafeAdd(*tx.Details.GasLimit)
			if overflow || !reserved.FitsIn(ceiling) {
				if p.metrics != nil {
					p.metrics.ObserveRejection(ErrBlockGasLimitReached)
				}
				res.Results = append(res.Results, TxResult{
					Payer:    tx.Payer,
					Rejected: ErrBlockGasLimitReached,
					Fault:    FaultNone,
				})
				continue
			}
			pool = reserved
		}
		outcome, err := p.processTx(tx, price, touched)
		if err != nil {
			return nil, fmt.Errorf("block %d tx %d: %w", number, i, err)
		}
		if tx.Details.GasLimit != nil {
			// Return the unused share of the declared limit to the pool
			// (all of it if the transaction was rejected before execution).
			pool = poolBefore
			if outcome.Settlement != nil {
				pool, _ = poolBefore.SafeAdd(outcome.Settlement.GasUsed)
			}
		}
		if outcome.Settlement != nil {
			used, overflow := res.GasUsed.SafeAdd(outcome.Settlement.GasUsed)
			if overflow {
				return nil, fmt.Errorf("block %d tx %d: %w", number, i, gas.ErrGasOverflow)
			}
			res.GasUsed = used
			res.Burned += outcome.Settlement.Burned
			res.Prover += outcome.Settlement.ProverReward
			res.SeqPay += outcome.Settlement.SequencerReward
		}
		res.Results = append(res.Results, outcome)
	}

	res.SeqFines = p.applySequencerFines(res.Results)

	// Funds-mode transactions have no a-priori vector bound, so a block can
	// nominally overshoot the ceiling; the oracle input saturates there.
	oracleInput := res.GasUsed
	if !oracleInput.FitsIn(ceiling) {
		log.Warn("Block gas usage clamped to ceiling", "block", number,
			"used", oracleInput.SingleGas(), "ceiling", ceiling.SingleGas())
		for i := gas.ResourceKind(0); i < gas.NumResourceKind; i++ {
			if oracleInput[i] > ceiling[i] {
				oracleInput[i] = ceiling[i]
			}
		}
	}
	if err := p.oracle.EndBlock(oracleInput); err != nil {
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.ObserveBlock(res, p.oracle.Price())
	}
	log.Debug("Processed block", "block", number, "txs", len(txs),
		"gasUsed", res.GasUsed.SingleGas(), "burned", res.Burned)
	return res, nil
}

func (p *BlockProcessor) processTx(
	tx *Tx,
	price gas.Vector,
	touched *gas.AccessSet,
) (TxResult, error) {
	result := TxResult{Payer: tx.Payer}

	reservation, err := Reserve(p.cfg, tx.Details, price, tx.Payer, p.ledger.BalanceOf(tx.Payer))
	if err != nil {
		if errors.Is(err, gas.ErrGasOverflow) {
			return result, err
		}
		result.Rejected = err
		result.Fault = ClassifyRejection(err)
		if p.metrics != nil {
			p.metrics.ObserveRejection(err)
		}
		return result, nil
	}

	// Lock the reservation before execution; settlement credits it back out.
	if err := p.ledger.Debit(tx.Payer, reservation.FundsReserved); err != nil {
		// Reserve just checked the balance; a failing debit means the
		// ledger and the reservation view diverged.
		return result, fmt.Errorf("reservation lock failed: %w", err)
	}

	acct := NewAccountant(reservation, price, p.cfg)
	state := gas.NewMeteredState(p.store, acct.Meter(), touched, p.cfg.Costs)

	if err := tx.Body(state); err != nil {
		if errors.Is(err, gas.ErrGasOverflow) {
			return result, err
		}
		// Out of gas or a reverted body: state changes are rolled back by
		// the (external) state layer, the gas stays consumed.
		result.ExecErr = err
	}

	result.Settlement = acct.Settle()
	result.Settlement.Apply(p.ledger, tx.Payer, p.to)
	return result, nil
}

// applySequencerFines debits the sequencer for penalty- and slash-class
// rejections and burns the fines. An underfunded sequencer account pays what
// it can; the shortfall is logged and carried by governance, not by this
// core.
func (p *BlockProcessor) applySequencerFines(results []TxResult) uint64 {
	var total uint64
	for _, r := range results {
		var fine uint64
		switch r.Fault {
		case FaultSequencerPenalty:
			fine = p.cfg.SequencerPenalty
		case FaultSequencerSlash:
			fine = p.cfg.SequencerSlash
		default:
			continue
		}
		if bal := p.ledger.BalanceOf(p.to.Sequencer); bal < fine {
			log.Warn("Sequencer cannot cover fine in full",
				"fine", fine, "paid", bal, "fault", r.Fault)
			fine = bal
		}
		if fine == 0 {
			continue
		}
		if err := p.ledger.Debit(p.to.Sequencer, fine); err != nil {
			// Balance was just checked; a failing debit means the ledger
			// view diverged mid-block.
			log.Error("Sequencer fine debit failed", "fine", fine, "fault", r.Fault)
			continue
		}
		p.ledger.Credit(p.to.BurnSink, fine)
		total += fine
	}
	return total
}
