package metrics

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typelens/internal/lens"
)

// gathered returns metric name -> label string -> value.
func gathered(t *testing.T, reg *prometheus.Registry) map[string]map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]map[string]float64)
	for _, mf := range families {
		values := make(map[string]float64)
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			key := strings.Join(labels, ",")
			switch {
			case m.GetCounter() != nil:
				values[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[key] = m.GetGauge().GetValue()
			}
		}
		out[mf.GetName()] = values
	}
	return out
}

func TestMetrics_Observer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.PassStarted("typescript")
	m.PassStarted("typescript")
	m.PassStarted("go")
	m.AnnotationsProvided("typescript", 7)
	m.Resolved(lens.ActionShowReferences)
	m.Resolved(lens.ActionShowReferences)
	m.Resolved(lens.ActionBlackboxed)
	m.HostCallFailed("references")
	m.PassCancelled()
	m.TrackedDocuments(3)

	got := gathered(t, reg)
	assert.Equal(t, 2.0, got["typelens_passes_total"]["language=typescript"])
	assert.Equal(t, 1.0, got["typelens_passes_total"]["language=go"])
	assert.Equal(t, 7.0, got["typelens_annotations_total"]["language=typescript"])
	assert.Equal(t, 2.0, got["typelens_resolutions_total"]["action=show-references"])
	assert.Equal(t, 1.0, got["typelens_resolutions_total"]["action=blackboxed"])
	assert.Equal(t, 1.0, got["typelens_host_call_failures_total"]["op=references"])
	assert.Equal(t, 1.0, got["typelens_cancelled_total"][""])
	assert.Equal(t, 3.0, got["typelens_tracked_documents"][""])
}

func TestServer_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).PassStarted("typescript")

	srv := NewServer("127.0.0.1:0", reg, func(context.Context) map[string]any {
		return map[string]any{"backends": []string{"scip", "lsp"}}
	}, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `typelens_passes_total{language="typescript"} 1`)

	resp, err = ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "up", health["status"])
	assert.Equal(t, []any{"scip", "lsp"}, health["backends"])
}

func TestServer_RunStopsWithContext(t *testing.T) {
	srv := NewServer("127.0.0.1:0", prometheus.NewRegistry(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()
	assert.NoError(t, <-done)
}
