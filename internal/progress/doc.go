// Package progress carries analysis milestones (job start, each checked link,
// job end) from workers to sinks through a non-blocking, batching hub.
package progress
