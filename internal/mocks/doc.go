// Package mocks provides centralized mock implementations for testing.
//
// Each mock keeps an in-memory default implementation guarded by a mutex,
// so it is safe to share across worker goroutines, and exposes a function
// field per method to override behavior in individual tests:
//
//	ledger := mocks.NewMockLedgerStore()
//	ledger.CountEntriesFn = func(ctx context.Context, batchID string) (int, error) {
//	    return 0, errors.New("boom")
//	}
//
// WithTx returns the receiver, so transactional code paths operate on the
// same in-memory state.
package mocks
