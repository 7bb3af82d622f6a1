// Package legacy executes statements against the legacy single-writer
// SQL Anywhere databases that back each repo. Connections are opened per
// call and always released; the "database name not unique" lock condition
// is retried by attaching to the running instance instead of its file.
package legacy
