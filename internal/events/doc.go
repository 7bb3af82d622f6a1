// Package events carries row changes on the shared task table from a
// subscription source to the components that react to them.
//
// The primary components are:
// - ChangeEvent: one INSERT/UPDATE/DELETE with the affected row
// - Subscriber: a blocking source of change events
// - EventHandler / EventEmitter: consumers and fan-out
package events
