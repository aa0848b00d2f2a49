// Package api hosts the ops HTTP server, middleware, and read-only handlers.
// Notable routes:
//   - GET /healthz / readyz for Kubernetes health checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/pages/{collection}/{thread}/{page} for the cached page index.
package api
