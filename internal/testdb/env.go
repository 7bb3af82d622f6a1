package testdb

import "os"

// URLVariables are checked in order for a test database URL.
var URLVariables = []string{"PURR_TEST_DATABASE_URL", "DATABASE_URL"}

// URL returns the first non-empty test database URL, or "".
func URL() string {
	for _, name := range URLVariables {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// ShouldSkip reports whether no test database is configured.
func ShouldSkip() bool {
	return URL() == ""
}
