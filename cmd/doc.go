// Package cmd defines the progressd CLI.
//
// Architecture overview:
//   - JSON-RPC stream: `progressd serve` speaks Content-Length framed JSON-RPC 2.0 on stdin/stdout.
//     internal/session answers initialize, runs the workspace initialization job on initialized,
//     accepts progress/simulate requests, and honours window/workDoneProgress/cancel, shutdown and exit.
//   - Progress: every background job asks internal/progress.Factory for a Monitor. Structured reporters
//     perform the window/workDoneProgress/create handshake and stream throttled $/progress begin, report
//     and end notifications; initialization jobs also report on the legacy language/progressReport and
//     language/status channels.
//   - Jobs: a bounded in-memory queue feeds a fixed worker pool (internal/jobs). Workers stop between
//     steps once the monitor reports cancellation and always finish the monitor.
//   - Observability: zap logs go to stderr; progress events are batched by the hub into Prometheus and
//     log sinks; the optional admin server exposes /healthz, /readyz, /metrics and the task endpoints.
//
// Quick checklist:
//   - Configure env vars: PROGRESS_PROGRESS_THROTTLE, PROGRESS_PROGRESS_SERVER_NAME, PROGRESS_JOBS_WORKERS,
//     PROGRESS_ADMIN_ENABLED/PROGRESS_ADMIN_PORT, PROGRESS_AUTH_API_KEY.
//   - Run locally: go run . serve --config config.yaml (or rely solely on env overrides).
package cmd
