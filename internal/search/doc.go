// Package search runs full-text searches over normalized asset documents
// and writes the hits, plus a summary row, to the search result table.
package search
