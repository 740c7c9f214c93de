package feemarket

import (
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/rollupgas/feemarket/gas"
	"github.com/rollupgas/feemarket/ledger"
	"github.com/rollupgas/feemarket/params"
)

func settleConfig(burnPercent uint64) *params.FeeConfig {
	cfg := params.DefaultFeeConfig()
	cfg.ChainID = 1
	cfg.BurnPercent = burnPercent
	return cfg
}

func testAddresses() Addresses {
	return Addresses{
		BurnSink:   common.HexToAddress("0x01"),
		ProverPool: common.HexToAddress("0x02"),
		Sequencer:  common.HexToAddress("0x03"),
	}
}

func requireConserved(t *testing.T, s *Settlement, reserved uint64) {
	t.Helper()
	require.Equal(t, reserved, s.BaseFeePaid+s.PriorityFeePaid+s.Refund, "funds conservation")
	require.Equal(t, s.BaseFeePaid, s.Burned+s.ProverReward, "burn/reward split")
	require.Equal(t, s.PriorityFeePaid, s.SequencerReward, "priority fee is the sequencer's")
}

func TestSettleTipAndRefund(t *testing.T) {
	// max_fee 1000, 10% tip rate, base fee 600:
	// tip = min(60, 400) = 60, refund = 340.
	cfg := settleConfig(50)
	price := uniform(1)
	res := &Reservation{
		Payer:         testPayer(),
		FundsReserved: 1000,
		Details: TxGasDetails{
			MaxFee:             1000,
			MaxPriorityFeeBips: 1000,
			GasLimit:           limitOf(gas.ComputationGas(1000)),
			ChainID:            1,
		},
	}
	acct := NewAccountant(res, price, cfg)
	require.NoError(t, acct.Meter().Charge(gas.ComputationGas(600)))

	s := acct.Settle()
	require.Equal(t, uint64(600), s.BaseFeePaid)
	require.Equal(t, uint64(60), s.PriorityFeePaid)
	require.Equal(t, uint64(340), s.Refund)
	require.Equal(t, uint64(300), s.Burned)
	require.Equal(t, uint64(300), s.ProverReward)
	require.False(t, s.OutOfGas)
	requireConserved(t, s, 1000)
}

func TestSettleTipCappedByHeadroom(t *testing.T) {
	cfg := settleConfig(50)
	res := &Reservation{
		FundsReserved: 1000,
		Details: TxGasDetails{
			MaxFee:             1000,
			MaxPriorityFeeBips: 5000, // 50% of base would be 475
			GasLimit:           limitOf(gas.ComputationGas(1000)),
			ChainID:            1,
		},
	}
	acct := NewAccountant(res, uniform(1), cfg)
	require.NoError(t, acct.Meter().Charge(gas.ComputationGas(950)))

	s := acct.Settle()
	require.Equal(t, uint64(950), s.BaseFeePaid)
	require.Equal(t, uint64(50), s.PriorityFeePaid, "tip capped by remaining funds")
	require.Zero(t, s.Refund)
	requireConserved(t, s, 1000)
}

func TestSettleOutOfGasForfeitsEverything(t *testing.T) {
	cfg := settleConfig(50)
	res := &Reservation{
		FundsReserved: 1000,
		Details: TxGasDetails{
			MaxFee:             1000,
			MaxPriorityFeeBips: 1000,
			GasLimit:           limitOf(gas.ComputationGas(100)),
			ChainID:            1,
		},
	}
	acct := NewAccountant(res, uniform(1), cfg)
	require.Error(t, acct.Meter().Charge(gas.ComputationGas(101)))

	s := acct.Settle()
	require.True(t, s.OutOfGas)
	require.Zero(t, s.Refund, "out of gas forfeits the whole reservation")
	require.Equal(t, uint64(1000), s.BaseFeePaid)
	require.Zero(t, s.PriorityFeePaid)
	require.Equal(t, uint64(500), s.Burned)
	require.Equal(t, uint64(500), s.ProverReward)
	requireConserved(t, s, 1000)
}

func TestSettleFundsModeMeter(t *testing.T) {
	// No declared gas limit: the meter runs on the reserved funds.
	cfg := settleConfig(30)
	res := &Reservation{
		FundsReserved: 10_000,
		Details:       TxGasDetails{MaxFee: 10_000, MaxPriorityFeeBips: 200, ChainID: 1},
	}
	acct := NewAccountant(res, uniform(10), cfg)
	require.NoError(t, acct.Meter().Charge(gas.StorageGas(70))) // 700 funds

	s := acct.Settle()
	require.Equal(t, uint64(700), s.BaseFeePaid)
	require.Equal(t, uint64(14), s.PriorityFeePaid) // 2% of 700
	require.Equal(t, uint64(9_286), s.Refund)
	require.Equal(t, uint64(210), s.Burned) // 30% of 700
	requireConserved(t, s, 10_000)
}

func TestSettleTruncationRemainderGoesToRefund(t *testing.T) {
	cfg := settleConfig(33)
	res := &Reservation{
		FundsReserved: 1000,
		Details: TxGasDetails{
			MaxFee:             1000,
			MaxPriorityFeeBips: 333,
			GasLimit:           limitOf(gas.ComputationGas(1000)),
			ChainID:            1,
		},
	}
	acct := NewAccountant(res, uniform(1), cfg)
	require.NoError(t, acct.Meter().Charge(gas.ComputationGas(7)))

	s := acct.Settle()
	require.Equal(t, uint64(7), s.BaseFeePaid)
	require.Equal(t, uint64(0), s.PriorityFeePaid) // floor(7*333/10000)
	require.Equal(t, uint64(993), s.Refund)
	require.Equal(t, uint64(2), s.Burned) // floor(7*33/100)
	require.Equal(t, uint64(5), s.ProverReward)
	requireConserved(t, s, 1000)
}

func TestSettleConservationProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		burn := uint64(rng.Intn(101))
		cfg := settleConfig(burn)
		limit := gas.ComputationGas(1 + uint64(rng.Intn(1_000_000)))
		price := uniform(1 + uint64(rng.Intn(1000)))
		worstCase, err := limit.Cost(price)
		require.NoError(t, err)

		res := &Reservation{
			FundsReserved: worstCase + uint64(rng.Intn(10_000)),
			Details: TxGasDetails{
				MaxFee:             worstCase + 10_000,
				MaxPriorityFeeBips: uint32(rng.Intn(20_000)),
				GasLimit:           &limit,
				ChainID:            1,
			},
		}
		acct := NewAccountant(res, price, cfg)
		charge := gas.ComputationGas(uint64(rng.Int63n(int64(limit[gas.ResourceKindComputation]) + 500)))
		_ = acct.Meter().Charge(charge) // may exhaust, both paths must conserve

		s := acct.Settle()
		requireConserved(t, s, res.FundsReserved)
		if s.OutOfGas {
			require.Zero(t, s.Refund)
		}
	}
}

func TestSettlementApplyCreditsEverything(t *testing.T) {
	l := ledger.NewMemoryLedger()
	payer := testPayer()
	to := testAddresses()

	l.Credit(payer, 10_000)
	require.NoError(t, l.Debit(payer, 1000)) // the reservation lock

	s := &Settlement{
		BaseFeePaid:     600,
		PriorityFeePaid: 60,
		Refund:          340,
		Burned:          300,
		ProverReward:    300,
		SequencerReward: 60,
	}
	s.Apply(l, payer, to)

	require.Equal(t, uint64(9_340), l.BalanceOf(payer))
	require.Equal(t, uint64(300), l.BalanceOf(to.BurnSink))
	require.Equal(t, uint64(300), l.BalanceOf(to.ProverPool))
	require.Equal(t, uint64(60), l.BalanceOf(to.Sequencer))
	require.Equal(t, uint64(10_000), l.TotalSupply(), "settlement conserves total supply")
}
