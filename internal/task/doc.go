// Package task schedules and executes tasks delivered from the shared task
// table.
//
// An Ingestor filters change events down to tasks owned by this worker and
// admits them to one of two QueueManagers: searches go to the search queue,
// everything else to the work queue. Each QueueManager drains its bounded
// FIFO into a fixed-size WorkerPool whose workers hand tasks to the
// Dispatcher. The Dispatcher drives the task state machine
// (PENDING -> PROCESSING -> deleted or FAILED) and routes by directive.
// The Reaper resets tasks left in PROCESSING by a crashed worker.
package task
