package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration     *prom.HistogramVec
	runDuration       prom.Histogram
	stageResults      *prom.CounterVec
	runOutcome        *prom.CounterVec
	renderDuration    *prom.HistogramVec
	nodeResults       *prom.CounterVec
	treeSize          prom.Gauge
	renderConcurrency prom.Gauge
}

// NewPrometheusRecorder constructs the metrics and registers them with reg
// (a fresh registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "sitebuilder",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual run stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		runDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "sitebuilder",
			Name:      "run_duration_seconds",
			Help:      "Total run duration",
			Buckets:   prom.DefBuckets,
		}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitebuilder",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		runOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitebuilder",
			Name:      "run_outcomes_total",
			Help:      "Run outcomes by final status",
		}, []string{"outcome"}),
		renderDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "sitebuilder",
			Name:      "node_render_duration_seconds",
			Help:      "Duration of rendering one node",
			Buckets:   prom.DefBuckets,
		}, []string{"handler"}),
		nodeResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitebuilder",
			Name:      "node_results_total",
			Help:      "Write pass results per node",
		}, []string{"handler", "result"}),
		treeSize: prom.NewGauge(prom.GaugeOpts{
			Namespace: "sitebuilder",
			Name:      "tree_nodes",
			Help:      "Number of nodes in the tree of the last run",
		}),
		renderConcurrency: prom.NewGauge(prom.GaugeOpts{
			Namespace: "sitebuilder",
			Name:      "render_concurrency",
			Help:      "Configured render workers of the last run",
		}),
	}
	reg.MustRegister(pr.stageDuration, pr.runDuration, pr.stageResults, pr.runOutcome,
		pr.renderDuration, pr.nodeResults, pr.treeSize, pr.renderConcurrency)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncRunOutcome(outcome RunOutcomeLabel) {
	if p == nil {
		return
	}
	p.runOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveNodeRenderDuration(handler string, d time.Duration) {
	if p == nil {
		return
	}
	p.renderDuration.WithLabelValues(handler).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncNodeResult(handler string, result NodeResultLabel) {
	if p == nil {
		return
	}
	p.nodeResults.WithLabelValues(handler, string(result)).Inc()
}

func (p *PrometheusRecorder) SetTreeSize(n int) {
	if p == nil {
		return
	}
	p.treeSize.Set(float64(n))
}

func (p *PrometheusRecorder) SetRenderConcurrency(n int) {
	if p == nil {
		return
	}
	p.renderConcurrency.Set(float64(n))
}

// HTTPHandler serves the metrics of reg in the Prometheus exposition format.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
