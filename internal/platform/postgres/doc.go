// Package postgres provides PostgreSQL implementations of the interfaces
// in internal/store, the embedded schema migrations, and a LISTEN/NOTIFY
// subscriber for task change events.
package postgres
