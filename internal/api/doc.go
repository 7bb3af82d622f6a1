// Package api serves the worker's read-only status surface: liveness,
// queue occupancy and batch progress. It adapts HTTP requests to the
// running components and never mutates task state.
package api
