// Package config handles configuration loading, parsing, and validation
// from defaults, an optional YAML file and PURR_ prefixed environment
// variables. It provides type-safe access to worker settings while keeping
// configuration details separate from business logic.
package config
