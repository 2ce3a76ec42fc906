// Package metrics exposes relay counters and gauges in the Prometheus text
// exposition format. Families are built directly as client_model values and
// encoded with expfmt; there is no client_golang registry.
package metrics
