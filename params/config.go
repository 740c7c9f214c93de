// Package params holds the fee-market protocol constants and the chain
// owner's fee configuration.
package params

import (
	"errors"
	"fmt"
	"os"

	"github.com/naoina/toml"

	"github.com/rollupgas/feemarket/gas"
)

// Protocol defaults. The adjustment denominator mirrors Ethereum's 1/8
// per-block maximum base-fee change.
const (
	InitialGasPrice         uint64 = 10
	InitialGasTarget        uint64 = 1_000_000
	DefaultAdjustDenom      uint64 = 8
	DefaultMinPrice         uint64 = 1
	DefaultMaxPrice         uint64 = 1 << 48
	DefaultBurnPercent      uint64 = 50
	DefaultPreCheckFloor    uint64 = 21_000
	DefaultSequencerPenalty uint64 = 10_000
	DefaultSequencerSlash   uint64 = 1_000_000
	DefaultTxGasCeiling     uint64 = 32_000_000
)

var (
	errZeroTarget      = errors.New("gas target must be positive in every dimension")
	errZeroAdjustDenom = errors.New("adjustment denominator must be positive")
	errPriceBounds     = errors.New("min price must not exceed max price")
	errBurnPercent     = errors.New("burn percent must be in [0, 100]")
	errWarmNotCheaper  = errors.New("warm access cost must be strictly cheaper than cold")
)

// FeeConfig is the complete configuration of the fee market. It is loaded
// once at startup and treated as immutable afterwards.
type FeeConfig struct {
	ChainID uint64

	// InitialPrice and GasTarget seed the price oracle. The target changes
	// only through throughput governance, never within this core.
	InitialPrice gas.Vector
	GasTarget    gas.Vector

	// AdjustDenom bounds the per-block price change to 1/AdjustDenom per
	// dimension. MinPrice/MaxPrice clamp the adjusted price.
	AdjustDenom uint64
	MinPrice    gas.Vector
	MaxPrice    gas.Vector

	// BurnPercent of every base fee is burned; the rest rewards the prover
	// pool. The priority fee goes to the sequencer in full.
	BurnPercent uint64

	// PreCheckFloor is the minimum balance needed to even attempt a
	// transaction (covers signature checks and the reservation itself). A
	// payer below the floor indicates a sequencer filtering failure and
	// costs the sequencer SequencerPenalty; stateless-invalid transactions
	// cost SequencerSlash.
	PreCheckFloor    uint64
	SequencerPenalty uint64
	SequencerSlash   uint64

	// TxGasCeiling caps any single transaction's declared gas limit per
	// dimension.
	TxGasCeiling gas.Vector

	Costs gas.CostSchedule
}

// DefaultFeeConfig returns the chain defaults. The cost schedule numbers
// follow the EIP-2929 cold/warm ratios, with proving weighted heaviest
// because cold accesses force fresh witness generation.
func DefaultFeeConfig() *FeeConfig {
	uniform := func(n uint64) gas.Vector {
		return gas.VectorFromPairs(
			gas.Pair{Kind: gas.ResourceKindComputation, Amount: n},
			gas.Pair{Kind: gas.ResourceKindProving, Amount: n},
			gas.Pair{Kind: gas.ResourceKindStorage, Amount: n},
			gas.Pair{Kind: gas.ResourceKindDataAvailability, Amount: n},
		)
	}
	return &FeeConfig{
		ChainID:          412346,
		InitialPrice:     uniform(InitialGasPrice),
		GasTarget:        uniform(InitialGasTarget),
		AdjustDenom:      DefaultAdjustDenom,
		MinPrice:         uniform(DefaultMinPrice),
		MaxPrice:         uniform(DefaultMaxPrice),
		BurnPercent:      DefaultBurnPercent,
		PreCheckFloor:    DefaultPreCheckFloor,
		SequencerPenalty: DefaultSequencerPenalty,
		SequencerSlash:   DefaultSequencerSlash,
		TxGasCeiling:     uniform(DefaultTxGasCeiling),
		Costs: gas.CostSchedule{
			ReadCold: gas.VectorFromPairs(
				gas.Pair{Kind: gas.ResourceKindComputation, Amount: 100},
				gas.Pair{Kind: gas.ResourceKindProving, Amount: 800},
				gas.Pair{Kind: gas.ResourceKindStorage, Amount: 2100},
			),
			ReadWarm: gas.VectorFromPairs(
				gas.Pair{Kind: gas.ResourceKindComputation, Amount: 10},
				gas.Pair{Kind: gas.ResourceKindProving, Amount: 40},
				gas.Pair{Kind: gas.ResourceKindStorage, Amount: 100},
			),
			WriteCold: gas.VectorFromPairs(
				gas.Pair{Kind: gas.ResourceKindComputation, Amount: 200},
				gas.Pair{Kind: gas.ResourceKindProving, Amount: 2000},
				gas.Pair{Kind: gas.ResourceKindStorage, Amount: 5000},
				gas.Pair{Kind: gas.ResourceKindDataAvailability, Amount: 512},
			),
			WriteWarm: gas.VectorFromPairs(
				gas.Pair{Kind: gas.ResourceKindComputation, Amount: 20},
				gas.Pair{Kind: gas.ResourceKindProving, Amount: 100},
				gas.Pair{Kind: gas.ResourceKindStorage, Amount: 300},
				gas.Pair{Kind: gas.ResourceKindDataAvailability, Amount: 512},
			),
		},
	}
}

// Validate checks the configuration invariants.
func (c *FeeConfig) Validate() error {
	for i := gas.ResourceKind(0); i < gas.NumResourceKind; i++ {
		if c.GasTarget[i] == 0 {
			return fmt.Errorf("%w: dimension %s", errZeroTarget, i)
		}
		if c.MinPrice[i] > c.MaxPrice[i] {
			return fmt.Errorf("%w: dimension %s", errPriceBounds, i)
		}
	}
	if c.AdjustDenom == 0 {
		return errZeroAdjustDenom
	}
	if c.BurnPercent > 100 {
		return errBurnPercent
	}
	if err := validateWarmCold(c.Costs.ReadWarm, c.Costs.ReadCold, "read"); err != nil {
		return err
	}
	return validateWarmCold(c.Costs.WriteWarm, c.Costs.WriteCold, "write")
}

func validateWarmCold(warm, cold gas.Vector, op string) error {
	if !warm.FitsIn(cold) || warm == cold {
		return fmt.Errorf("%w: %s", errWarmNotCheaper, op)
	}
	return nil
}

// LoadFeeConfig reads a TOML fee configuration, applying defaults for
// omitted fields.
func LoadFeeConfig(path string) (*FeeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultFeeConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid fee config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
