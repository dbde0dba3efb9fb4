package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Recorder = (*PrometheusRecorder)(nil)
var _ Recorder = NoopRecorder{}

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveStageDuration("build", 150*time.Millisecond)
	pr.ObserveRunDuration(500 * time.Millisecond)
	pr.IncStageResult("build", ResultSuccess)
	pr.IncRunOutcome(RunOutcomeSuccess)
	pr.ObserveNodeRenderDuration("page", 10*time.Millisecond)
	pr.IncNodeResult("page", NodeWritten)
	pr.SetTreeSize(12)
	pr.SetRenderConcurrency(4)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["sitebuilder_run_outcomes_total"])
	assert.True(t, names["sitebuilder_node_results_total"])
	assert.True(t, names["sitebuilder_tree_nodes"])
}

func TestPrometheusRecorder_NilReceiver(t *testing.T) {
	var pr *PrometheusRecorder
	assert.NotPanics(t, func() {
		pr.IncRunOutcome(RunOutcomeFailed)
		pr.SetTreeSize(1)
	})
}

func TestHTTPHandler(t *testing.T) {
	reg := prom.NewRegistry()
	NewPrometheusRecorder(reg).IncRunOutcome(RunOutcomeNoop)

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sitebuilder_run_outcomes_total{outcome="noop"} 1`)
}
