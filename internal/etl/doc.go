// Package etl turns legacy rows into normalized asset documents and upserts
// them.
//
// Transform normalizes a single column value according to its declared
// kind. ComposeDocs builds one content-addressed document per row, grouping
// columns under sub-documents by prefix. Loader runs an extract-page
// sub-task end to end: query, compose, upsert, all documents of a page in
// one transaction.
package etl
