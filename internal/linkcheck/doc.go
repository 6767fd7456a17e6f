// Package linkcheck defines the core types, interfaces, and pure helpers of the
// broken-link analysis engine: jobs and their lifecycle, link candidates,
// checked links, the aggregated result, URL resolution and classification,
// and the health score/recommendation rules.
package linkcheck
