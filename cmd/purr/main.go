// Package main is the entry point for the purr worker, which admits tasks
// from the shared task table and runs extraction, discovery and search
// work against legacy project databases.
package main

import (
	"fmt"
	"os"

	// Database drivers registered with database/sql.
	_ "github.com/alexbrainman/odbc"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
