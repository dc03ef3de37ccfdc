// Package prometheus exposes branchauth engine metrics through
// client_golang.
//
// [Collector] turns one [branchauth.Engine.MetricsSnapshot] into const
// metrics per scrape. [PrometheusExporter] wraps it in a private registry
// and serves it with promhttp. Counters are named branchauth_*_total; the
// latency histograms are branchauth_login_latency_seconds and
// branchauth_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry; callers mount the
//     Handler or register the Collector themselves.
//   - Mutate engine state.
package prometheus
