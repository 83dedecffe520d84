package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "croncounter"

// Metrics 持有本服务的全部指标，注册在私有 registry 上，测试之间互不干扰。
type Metrics struct {
	registry *prometheus.Registry

	Runs            *prometheus.CounterVec
	ParseRecoveries prometheus.Counter
	PingFailures    prometheus.Counter
	Value           prometheus.Gauge
	RunDuration     prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Cron invocations by outcome.",
		}, []string{"outcome"}),
		ParseRecoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_recoveries_total",
			Help:      "Runs that found unparseable counter content and restarted from zero.",
		}),
		PingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ping_failures_total",
			Help:      "Self-pings that failed at the transport level.",
		}),
		Value: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "value",
			Help:      "Counter value written by the last successful run.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of authorized cron invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
	m.registry.MustRegister(m.Runs, m.ParseRecoveries, m.PingFailures, m.Value, m.RunDuration)
	return m
}

// Handler 暴露 /metrics。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
