// Package dna reads asset extraction metadata from a local YAML document,
// for workers that do not use the hosted edge functions.
package dna
