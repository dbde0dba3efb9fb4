// Package metrics records run and node metrics of the site builder.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics collection needs no nil checks:
//
//	w := website.New(cfg).WithRecorder(metrics.NewPrometheusRecorder(reg))
//
// The Prometheus implementation is exposed over HTTP by HTTPHandler, which
// watch mode serves when a metrics address is configured.
package metrics
