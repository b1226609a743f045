package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fineprint"

// RunStates lists the values the run_state gauge can take.
var RunStates = []string{"idle", "discovering", "fetching", "analyzing", "completed", "cancelling", "cancelled", "failed"}

// Metrics holds the prometheus collectors. All methods are safe on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	documentsFetched *prometheus.CounterVec
	fetchRetries     *prometheus.CounterVec
	providerErrors   *prometheus.CounterVec
	queriesRun       *prometheus.CounterVec
	resultsFound     *prometheus.CounterVec
	nlpFallbacks     prometheus.Counter
	runState         *prometheus.GaugeVec
}

// NewMetrics registers collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		documentsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_fetched_total",
			Help:      "Documents fetched, by tier and outcome status.",
		}, []string{"tier", "status"}),
		fetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "Fetch attempts retried after a transient failure.",
		}, []string{"tier"}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Search provider failures.",
		}, []string{"provider"}),
		queriesRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_run_total",
			Help:      "Discovery queries executed, by provider.",
		}, []string{"provider"}),
		resultsFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_found_total",
			Help:      "Results emitted, by tier label.",
		}, []string{"label"}),
		nlpFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nlp_fallbacks_total",
			Help:      "Candidates scored on patterns alone because the NLP scorer failed.",
		}),
		runState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_state",
			Help:      "1 for the current pipeline state, 0 otherwise.",
		}, []string{"state"}),
	}

	reg.MustRegister(
		m.documentsFetched,
		m.fetchRetries,
		m.providerErrors,
		m.queriesRun,
		m.resultsFound,
		m.nlpFallbacks,
		m.runState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.SetRunState("idle")
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) DocumentFetched(tier, status string) {
	if m == nil {
		return
	}
	m.documentsFetched.WithLabelValues(tier, status).Inc()
}

func (m *Metrics) FetchRetry(tier string) {
	if m == nil {
		return
	}
	m.fetchRetries.WithLabelValues(tier).Inc()
}

func (m *Metrics) ProviderError(provider string) {
	if m == nil {
		return
	}
	m.providerErrors.WithLabelValues(provider).Inc()
}

func (m *Metrics) QueryRun(provider string) {
	if m == nil {
		return
	}
	m.queriesRun.WithLabelValues(provider).Inc()
}

func (m *Metrics) ResultFound(label string) {
	if m == nil {
		return
	}
	m.resultsFound.WithLabelValues(label).Inc()
}

func (m *Metrics) NlpFallback() {
	if m == nil {
		return
	}
	m.nlpFallbacks.Inc()
}

// SetRunState sets the gauge for state to 1 and every other state to 0.
func (m *Metrics) SetRunState(state string) {
	if m == nil {
		return
	}
	for _, s := range RunStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.runState.WithLabelValues(s).Set(v)
	}
}
