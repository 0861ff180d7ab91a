// Package telemetry provides Prometheus metrics and OpenTelemetry tracing
// for deployment runs. Both are disabled by default and safe to use as
// no-ops when disabled.
package telemetry
