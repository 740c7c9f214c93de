package gas

import (
	"errors"
	"math"
	"testing"
)

func testPrice() Vector {
	return VectorFromPairs(
		Pair{ResourceKindComputation, 1},
		Pair{ResourceKindProving, 8},
		Pair{ResourceKindStorage, 2},
		Pair{ResourceKindDataAvailability, 4},
	)
}

func TestMeterCharge(t *testing.T) {
	m := NewMeter(ComputationGas(100), testPrice())
	if err := m.Charge(ComputationGas(60)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := m.Remaining().Get(ResourceKindComputation), uint64(40); got != want {
		t.Errorf("unexpected remaining: got %v, want %v", got, want)
	}
	if got, want := m.GasUsed().Get(ResourceKindComputation), uint64(60); got != want {
		t.Errorf("unexpected used: got %v, want %v", got, want)
	}
}

func TestMeterExhaustionIsTerminal(t *testing.T) {
	m := NewMeter(ComputationGas(100), testPrice())
	if err := m.Charge(ComputationGas(101)); !errors.Is(err, ErrOutOfGas) {
		t.Fatalf("expected ErrOutOfGas, got %v", err)
	}
	if !m.Exhausted() {
		t.Fatal("meter should be exhausted")
	}
	// No refund: the full limit counts as used.
	if got, want := m.GasUsed(), ComputationGas(100); got != want {
		t.Errorf("unexpected used after exhaustion: got %v, want %v", got, want)
	}
	if !m.Remaining().IsZero() {
		t.Errorf("remaining should be zero after exhaustion, got %v", m.Remaining())
	}
	// Even an affordable-looking charge fails once exhausted.
	if err := m.Charge(Vector{}); !errors.Is(err, ErrOutOfGas) {
		t.Errorf("expected ErrOutOfGas after exhaustion, got %v", err)
	}
}

func TestMeterMultiDimensionalExhaustion(t *testing.T) {
	limit := VectorFromPairs(Pair{ResourceKindComputation, 100}, Pair{ResourceKindProving, 10})
	m := NewMeter(limit, testPrice())
	// Affordable in computation, not in proving.
	charge := VectorFromPairs(Pair{ResourceKindComputation, 1}, Pair{ResourceKindProving, 11})
	if err := m.Charge(charge); !errors.Is(err, ErrOutOfGas) {
		t.Fatalf("expected ErrOutOfGas, got %v", err)
	}
}

func TestMeterChargeAccess(t *testing.T) {
	cold := StorageGas(2100)
	warm := StorageGas(100)
	m := NewMeter(StorageGas(2200), testPrice())
	if err := m.ChargeAccess(false, cold, warm); err != nil {
		t.Fatalf("cold access: %v", err)
	}
	if err := m.ChargeAccess(true, cold, warm); err != nil {
		t.Fatalf("warm access: %v", err)
	}
	if got, want := m.Remaining().Get(ResourceKindStorage), uint64(0); got != want {
		t.Errorf("unexpected remaining: got %v, want %v", got, want)
	}
}

func TestFundsMeter(t *testing.T) {
	m := NewFundsMeter(1000, testPrice())
	// 10 computation (10) + 20 storage (40) = 50 funds.
	if err := m.Charge(VectorFromPairs(
		Pair{ResourceKindComputation, 10},
		Pair{ResourceKindStorage, 20},
	)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	left, err := m.RemainingFunds()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := uint64(950); left != want {
		t.Errorf("unexpected remaining funds: got %v, want %v", left, want)
	}
	consumed, err := m.ConsumedFunds()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := uint64(50); consumed != want {
		t.Errorf("unexpected consumed funds: got %v, want %v", consumed, want)
	}
}

func TestFundsMeterExhaustionConsumesEverything(t *testing.T) {
	m := NewFundsMeter(100, testPrice())
	if err := m.Charge(ComputationGas(40)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Charge(ComputationGas(61)); !errors.Is(err, ErrOutOfGas) {
		t.Fatalf("expected ErrOutOfGas, got %v", err)
	}
	consumed, err := m.ConsumedFunds()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := uint64(100); consumed != want {
		t.Errorf("exhausted meter should consume the full budget: got %v, want %v", consumed, want)
	}
	// The used vector keeps only the gas actually charged: funds mode has
	// no declared limit to pin to.
	if got, want := m.GasUsed(), ComputationGas(40); got != want {
		t.Errorf("unexpected used after funds exhaustion: got %v, want %v", got, want)
	}
}

func TestMeterChargeOverflowIsFatal(t *testing.T) {
	m := NewFundsMeter(math.MaxUint64, ComputationGas(2))
	if err := m.Charge(ComputationGas(math.MaxUint64)); !errors.Is(err, ErrGasOverflow) {
		t.Fatalf("expected ErrGasOverflow, got %v", err)
	}
	if m.Exhausted() {
		t.Error("overflow is a configuration fault, not gas exhaustion")
	}
}

func TestMeterRemainingFundsVectorMode(t *testing.T) {
	m := NewMeter(VectorFromPairs(
		Pair{ResourceKindComputation, 10}, // worth 10
		Pair{ResourceKindProving, 5},      // worth 40
	), testPrice())
	if err := m.Charge(ProvingGas(2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	left, err := m.RemainingFunds()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := uint64(10 + 3*8); left != want {
		t.Errorf("unexpected remaining funds: got %v, want %v", left, want)
	}
}
