// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the worker's core logic: the shared task table, the batch ledger, repo
// records, asset document tables and search results.
package store
