// Package domain contains the core entities of the worker: tasks and their
// directive-specific bodies, batch ledger entries, repos and the normalized
// asset documents extracted from them. It has no infrastructure dependencies.
package domain
