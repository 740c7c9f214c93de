// Package ledger defines the balance-ledger boundary of the fee market.
// The fee core only computes amounts; moving funds is the ledger's job.
package ledger

import (
	"errors"
	"math"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInsufficientBalance = errors.New("insufficient balance for debit")

// Ledger is the external balance system consulted during fee reservation and
// mutated when a settlement is applied.
type Ledger interface {
	// BalanceOf returns the spendable balance of addr.
	BalanceOf(addr common.Address) uint64

	// Debit removes amount from addr, failing if the balance is too low.
	Debit(addr common.Address, amount uint64) error

	// Credit adds amount to addr. Balances saturate at MaxUint64 rather
	// than wrap; a chain minting that much is misconfigured anyway.
	Credit(addr common.Address, amount uint64)
}

// MemoryLedger is a map-backed Ledger for tests and simulation.
type MemoryLedger struct {
	balances map[common.Address]uint64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[common.Address]uint64)}
}

func (l *MemoryLedger) BalanceOf(addr common.Address) uint64 {
	return l.balances[addr]
}

func (l *MemoryLedger) Debit(addr common.Address, amount uint64) error {
	bal := l.balances[addr]
	if bal < amount {
		return ErrInsufficientBalance
	}
	l.balances[addr] = bal - amount
	return nil
}

func (l *MemoryLedger) Credit(addr common.Address, amount uint64) {
	bal := l.balances[addr]
	if amount > math.MaxUint64-bal {
		l.balances[addr] = math.MaxUint64
		return
	}
	l.balances[addr] = bal + amount
}

// TotalSupply sums all balances, saturating at MaxUint64. Useful for
// conservation checks.
func (l *MemoryLedger) TotalSupply() uint64 {
	var total uint64
	for _, bal := range l.balances {
		if bal > math.MaxUint64-total {
			return math.MaxUint64
		}
		total += bal
	}
	return total
}
