// Package store holds JobStore backends: memory for development and tests,
// postgres and sqlite for durable history. Each backend implements
// linkcheck.JobStore and enforces the job state machine on write.
package store
