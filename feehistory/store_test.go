package feehistory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rollupgas/feemarket/gas"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func uniform(n uint64) gas.Vector {
	var v gas.Vector
	for i := gas.ResourceKind(0); i < gas.NumResourceKind; i++ {
		v[i] = n
	}
	return v
}

func record(number, price uint64) *Record {
	return &Record{
		BlockNumber:     number,
		Price:           uniform(price),
		GasUsed:         uniform(number * 1000),
		Burned:          number * 10,
		ProverReward:    number * 10,
		SequencerReward: number,
		Refunded:        number * 7,
		TxCount:         uint32(number),
	}
}

func TestStorePutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	want := record(42, 100)
	require.NoError(t, s.Put(want))

	got, err := s.Get(42)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestStoreGetMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(7)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStorePutOverwrites(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Put(record(1, 100)))
	require.NoError(t, s.Put(record(1, 200)))

	got, err := s.Get(1)
	require.NoError(t, err)
	require.Equal(t, uniform(200), got.Price)
}

func TestStoreLatest(t *testing.T) {
	s := openTestStore(t)
	for n := uint64(1); n <= 10; n++ {
		require.NoError(t, s.Put(record(n, n*10)))
	}

	latest, err := s.Latest(3)
	require.NoError(t, err)
	require.Len(t, latest, 3)
	require.Equal(t, uint64(8), latest[0].BlockNumber, "ascending block order")
	require.Equal(t, uint64(9), latest[1].BlockNumber)
	require.Equal(t, uint64(10), latest[2].BlockNumber)

	// Asking for more than exists returns everything.
	all, err := s.Latest(100)
	require.NoError(t, err)
	require.Len(t, all, 10)

	none, err := s.Latest(0)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestStoreLatestKeyOrderAcrossWidths(t *testing.T) {
	// Big-endian keys keep block 256 after block 2.
	s := openTestStore(t)
	require.NoError(t, s.Put(record(2, 10)))
	require.NoError(t, s.Put(record(256, 20)))

	latest, err := s.Latest(1)
	require.NoError(t, err)
	require.Equal(t, uint64(256), latest[0].BlockNumber)
}

func TestSuggestPricePercentiles(t *testing.T) {
	s := openTestStore(t)
	// Prices 10, 20, ..., 100 over ten blocks.
	for n := uint64(1); n <= 10; n++ {
		require.NoError(t, s.Put(record(n, n*10)))
	}

	median, err := s.SuggestPrice(10, 50)
	require.NoError(t, err)
	require.Equal(t, uniform(60), median)

	low, err := s.SuggestPrice(10, 0)
	require.NoError(t, err)
	require.Equal(t, uniform(10), low)

	high, err := s.SuggestPrice(10, 100)
	require.NoError(t, err)
	require.Equal(t, uniform(100), high)

	// A shorter lookback only sees the newest blocks.
	recent, err := s.SuggestPrice(3, 0)
	require.NoError(t, err)
	require.Equal(t, uniform(80), recent)
}

func TestSuggestPricePerDimension(t *testing.T) {
	s := openTestStore(t)

	r1 := record(1, 0)
	r1.Price = gas.VectorFromPairs(
		gas.Pair{Kind: gas.ResourceKindComputation, Amount: 5},
		gas.Pair{Kind: gas.ResourceKindProving, Amount: 500},
		gas.Pair{Kind: gas.ResourceKindStorage, Amount: 50},
		gas.Pair{Kind: gas.ResourceKindDataAvailability, Amount: 5000},
	)
	r2 := record(2, 0)
	r2.Price = gas.VectorFromPairs(
		gas.Pair{Kind: gas.ResourceKindComputation, Amount: 9},
		gas.Pair{Kind: gas.ResourceKindProving, Amount: 100},
		gas.Pair{Kind: gas.ResourceKindStorage, Amount: 90},
		gas.Pair{Kind: gas.ResourceKindDataAvailability, Amount: 1000},
	)
	require.NoError(t, s.Put(r1))
	require.NoError(t, s.Put(r2))

	// The percentile is taken per dimension, not per record.
	high, err := s.SuggestPrice(2, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(9), high[gas.ResourceKindComputation])
	require.Equal(t, uint64(500), high[gas.ResourceKindProving])
	require.Equal(t, uint64(90), high[gas.ResourceKindStorage])
	require.Equal(t, uint64(5000), high[gas.ResourceKindDataAvailability])
}

func TestSuggestPriceNoHistory(t *testing.T) {
	s := openTestStore(t)

	_, err := s.SuggestPrice(20, 60)
	require.ErrorIs(t, err, ErrNoHistory)
}
