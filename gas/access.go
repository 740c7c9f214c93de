package gas

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// AccessKey identifies a state slot for warm/cold accounting.
type AccessKey [32]byte

// AccessSet is the block-scoped set of state keys touched so far. Whether an
// access is warm depends on the exact order of earlier transactions in the
// same block, so the set is deliberately not safe for concurrent use:
// transactions within a block execute sequentially by protocol rule.
type AccessSet struct {
	touched mapset.Set[AccessKey]
}

func NewAccessSet() *AccessSet {
	return &AccessSet{touched: mapset.NewThreadUnsafeSet[AccessKey]()}
}

// Touch records an access to key and reports whether it was already touched
// this block. The first access returns false (cold) and marks the key warm
// for the rest of the block, whether or not the caller can afford the cold
// cost; an unaffordable charge rolls back with the rest of the transaction.
func (s *AccessSet) Touch(key AccessKey) bool {
	if s.touched.Contains(key) {
		return true
	}
	s.touched.Add(key)
	return false
}

// Contains reports whether key is warm without touching it.
func (s *AccessSet) Contains(key AccessKey) bool {
	return s.touched.Contains(key)
}

// Len returns the number of keys touched this block.
func (s *AccessSet) Len() int {
	return s.touched.Cardinality()
}

// CostSchedule holds the per-access cost vectors. Warm costs must be less
// than or equal to cold costs in every dimension, strictly less in at least
// one; params.FeeConfig.Validate enforces this.
type CostSchedule struct {
	ReadCold  Vector
	ReadWarm  Vector
	WriteCold Vector
	WriteWarm Vector
}

// Store is the raw key-value backing for metered and unmetered state. Reads
// of absent keys return nil.
type Store interface {
	Get(key AccessKey) []byte
	Set(key AccessKey, value []byte)
}

// MemoryStore is a map-backed Store.
type MemoryStore struct {
	data map[AccessKey][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[AccessKey][]byte)}
}

func (s *MemoryStore) Get(key AccessKey) []byte {
	return s.data[key]
}

func (s *MemoryStore) Set(key AccessKey, value []byte) {
	s.data[key] = value
}

// MeteredState charges a transaction's meter for every state access. Code
// holding a MeteredState can run out of gas on any access, which the error
// returns make explicit.
type MeteredState struct {
	store   Store
	meter   *Meter
	touched *AccessSet
	costs   CostSchedule
}

// NewMeteredState wraps store with per-access gas charging. The access set
// is shared by all transactions in the block; the meter belongs to one
// transaction.
func NewMeteredState(store Store, meter *Meter, touched *AccessSet, costs CostSchedule) *MeteredState {
	return &MeteredState{store: store, meter: meter, touched: touched, costs: costs}
}

func (s *MeteredState) Get(key AccessKey) ([]byte, error) {
	warm := s.touched.Touch(key)
	if err := s.meter.ChargeAccess(warm, s.costs.ReadCold, s.costs.ReadWarm); err != nil {
		return nil, err
	}
	return s.store.Get(key), nil
}

func (s *MeteredState) Set(key AccessKey, value []byte) error {
	warm := s.touched.Touch(key)
	if err := s.meter.ChargeAccess(warm, s.costs.WriteCold, s.costs.WriteWarm); err != nil {
		return err
	}
	s.store.Set(key, value)
	return nil
}

// Meter returns the transaction meter backing this state.
func (s *MeteredState) Meter() *Meter {
	return s.meter
}

// UnmeteredState reads state without charging gas. It is a separate type
// rather than a mode switch so that code paths that cannot fail on gas
// exhaustion are distinguished by the type system. Only protocol-internal
// bookkeeping may hold an UnmeteredState.
type UnmeteredState struct {
	store Store
}

func NewUnmeteredState(store Store) *UnmeteredState {
	return &UnmeteredState{store: store}
}

func (s *UnmeteredState) Get(key AccessKey) []byte {
	return s.store.Get(key)
}
