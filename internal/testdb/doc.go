// Package testdb provides helpers for tests that need a real PostgreSQL
// database: locating it through the environment, applying the embedded
// migrations, and isolating each test in a rolled-back transaction.
package testdb
