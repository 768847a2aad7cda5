package period

import (
	"fmt"
	"sync"
)

// Scope holds the transient period counts for one logical operation:
// a single calculation, a bulk run, or a test run. It is created at
// the start of the operation, threaded explicitly through the call
// chain, and discarded at the end. Two concurrent operations never
// share a scope, so their transient counts cannot cross-talk.
//
// The scope also snapshots durable counts on first query, so a
// best-effort persist of an earlier batch item cannot be counted
// twice (once durably, once transiently) by a later item.
type Scope struct {
	mu        sync.Mutex
	transient map[string]int
	baselines map[string]int64
}

// NewScope creates an empty transient counting scope.
func NewScope() *Scope {
	return &Scope{
		transient: make(map[string]int),
		baselines: make(map[string]int64),
	}
}

// Record increments the transient count for the customer and type.
// Called once per transaction, before tier evaluation, so the count
// a tier decision sees includes the current transaction.
func (s *Scope) Record(customerID, txType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transient[countKey(customerID, txType)]++
}

// Transient returns the in-scope count for the customer and type.
func (s *Scope) Transient(customerID, txType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transient[countKey(customerID, txType)]
}

// Baseline returns the snapshotted durable count for the key, if one
// was taken in this scope.
func (s *Scope) Baseline(customerID, txType string, w Window) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.baselines[baselineKey(customerID, txType, w)]
	return n, ok
}

// StoreBaseline snapshots a durable count for the rest of the scope.
func (s *Scope) StoreBaseline(customerID, txType string, w Window, count int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baselines[baselineKey(customerID, txType, w)] = count
}

func countKey(customerID, txType string) string {
	return customerID + "|" + txType
}

func baselineKey(customerID, txType string, w Window) string {
	return fmt.Sprintf("%s|%s|%d|%d", customerID, txType, w.Start.Unix(), w.End.Unix())
}
