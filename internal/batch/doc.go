// Package batch decomposes extract-batch tasks into page-sized extract-page
// sub-tasks and tracks their completion through the batch ledger.
//
// PlanPages partitions a row count into 1-based pages. The SQL helpers
// build the count and page statements in the legacy SQL Anywhere dialect.
// Coordinator ties these together: it counts matching rows, writes one
// sub-task and one ledger row per page inside a single transaction and
// removes the parent task. Sub-task completion deletes the ledger row;
// failure leaves it at FAILED so the batch never reports finished.
package batch
