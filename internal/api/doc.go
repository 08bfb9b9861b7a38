// Package api hosts the admin HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/tasks lists running progress streams.
//   - POST /v1/tasks/{token}/cancel cancels one of them.
//   - POST /v1/jobs queues a simulated background task.
package api
