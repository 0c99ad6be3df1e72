// Package prometheus renders riskgate metrics in Prometheus text format.
//
// [NewPrometheusExporter] accepts a [riskgate.Engine] and exposes an [http.Handler]
// that renders all counters and histograms in text exposition format.
// Counter names are prefixed riskgate_*_total; the single histogram is
// riskgate_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the Handler.
//   - Mutate engine state.
package prometheus
