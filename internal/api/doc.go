// Package api hosts the HTTP server, middleware, and REST handlers for the
// analysis service. Routes:
//   - POST /analyze to submit a page for analysis.
//   - GET /analyze/{analysisId} for status and progress.
//   - DELETE /analyze/{analysisId} to cancel.
//   - GET /analyze/{analysisId}/results for the finished report.
//   - GET /analyze for paginated history.
//   - GET /healthz, /readyz and /metrics for operators.
package api
