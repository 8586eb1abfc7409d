// Package metrics defines Prometheus metrics for dlctl logins, covering flow
// runs, fallbacks, capability probes and device polling.
package metrics
