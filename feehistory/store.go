// Package feehistory persists per-block fee market records and serves
// price suggestions computed over a recent lookback window.
package feehistory

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/rollupgas/feemarket/gas"
)

// recordPrefix namespaces fee records within the database. Keys are the
// prefix followed by the big-endian block number, so iteration order is
// block order.
const recordPrefix = byte('r')

var (
	ErrNotFound  = errors.New("fee history: record not found")
	ErrNoHistory = errors.New("fee history: no records in lookback window")
)

// Record is the persisted fee summary of one block.
type Record struct {
	BlockNumber     uint64
	Price           gas.Vector
	GasUsed         gas.Vector
	Burned          uint64
	ProverReward    uint64
	SequencerReward uint64
	Refunded        uint64
	TxCount         uint32
}

// Store is a pebble-backed fee history database. It is safe for concurrent
// use.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) a fee history database in dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("fee history: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// OpenMemory opens an in-memory fee history database, for tests and
// simulations that do not need persistence.
func OpenMemory() (*Store, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("fee history: open in-memory: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(number uint64) []byte {
	key := make([]byte, 9)
	key[0] = recordPrefix
	binary.BigEndian.PutUint64(key[1:], number)
	return key
}

// Put stores the record under its block number, overwriting any previous
// record for that block.
func (s *Store) Put(rec *Record) error {
	data, err := rlp.EncodeToBytes(rec)
	if err != nil {
		return fmt.Errorf("fee history: encode block %d: %w", rec.BlockNumber, err)
	}
	if err := s.db.Set(recordKey(rec.BlockNumber), data, pebble.NoSync); err != nil {
		return fmt.Errorf("fee history: put block %d: %w", rec.BlockNumber, err)
	}
	return nil
}

// Get returns the record for the given block number, or ErrNotFound.
func (s *Store) Get(number uint64) (*Record, error) {
	data, closer, err := s.db.Get(recordKey(number))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fee history: get block %d: %w", number, err)
	}
	defer closer.Close()

	rec := new(Record)
	if err := rlp.DecodeBytes(data, rec); err != nil {
		return nil, fmt.Errorf("fee history: decode block %d: %w", number, err)
	}
	return rec, nil
}

// Latest returns up to n of the most recent records in ascending block
// order.
func (s *Store) Latest(n int) ([]*Record, error) {
	if n <= 0 {
		return nil, nil
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{recordPrefix},
		UpperBound: []byte{recordPrefix + 1},
	})
	if err != nil {
		return nil, fmt.Errorf("fee history: iterator: %w", err)
	}
	defer iter.Close()

	var records []*Record
	for ok := iter.Last(); ok && len(records) < n; ok = iter.Prev() {
		rec := new(Record)
		if err := rlp.DecodeBytes(iter.Value(), rec); err != nil {
			return nil, fmt.Errorf("fee history: decode record: %w", err)
		}
		records = append(records, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("fee history: iterate: %w", err)
	}

	// Reverse the newest-first scan into block order.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// SuggestPrice returns, per dimension, the given percentile of the prices
// seen over the last lookback blocks. Percentile is clamped to [0, 100];
// a lookback of zero or less falls back to 20 blocks.
func (s *Store) SuggestPrice(lookback, percentile int) (gas.Vector, error) {
	if lookback <= 0 {
		lookback = 20
	}
	if percentile < 0 {
		percentile = 0
	}
	if percentile > 100 {
		percentile = 100
	}

	records, err := s.Latest(lookback)
	if err != nil {
		return gas.Vector{}, err
	}
	if len(records) == 0 {
		return gas.Vector{}, ErrNoHistory
	}

	var suggestion gas.Vector
	sample := make([]uint64, len(records))
	for i := gas.ResourceKind(0); i < gas.NumResourceKind; i++ {
		for j, rec := range records {
			sample[j] = rec.Price[i]
		}
		sort.Slice(sample, func(a, b int) bool { return sample[a] < sample[b] })

		idx := len(sample) * percentile / 100
		if idx >= len(sample) {
			idx = len(sample) - 1
		}
		suggestion[i] = sample[idx]
	}
	return suggestion, nil
}
