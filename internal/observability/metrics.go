package observability

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/triage-backend/internal/platform/logger"
)

// Metrics is the process-wide collector set. Every method is safe on a nil
// receiver so callers never branch on whether metrics are enabled.
type Metrics struct {
	reg *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	verdicts      *prometheus.CounterVec
	scores        *prometheus.HistogramVec
	agentRuns     *prometheus.CounterVec
	agentLatency  *prometheus.HistogramVec
	retrievals    *prometheus.CounterVec
	modelLoads    *prometheus.CounterVec
	modelLoadTime prometheus.Histogram
	idempotency   *prometheus.CounterVec
	verdictWrites *prometheus.CounterVec

	pgStats   *prometheus.GaugeVec
	redisUp   prometheus.Gauge
	redisPing prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS"))
	if v == "" {
		return 10 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}

// Init returns nil unless METRICS_ENABLED is set.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("Observability metrics enabled")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "triage_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "triage_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_verdicts_total",
			Help: "Verdicts produced by kind (triage/gnn/supervisor) and label.",
		}, []string{"kind", "verdict"}),
		scores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "triage_risk_score",
			Help:    "Distribution of final risk scores by kind.",
			Buckets: []float64{10, 20, 25, 30, 40, 50, 60, 70, 80, 90, 100},
		}, []string{"kind"}),
		agentRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_supervisor_agent_runs_total",
			Help: "Supervisor agent executions by agent/status.",
		}, []string{"agent", "status"}),
		agentLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "triage_supervisor_agent_duration_seconds",
			Help:    "Supervisor agent latency in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"agent"}),
		retrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_gnn_retrievals_total",
			Help: "Subgraph retrievals by outcome (ego or isolation reason).",
		}, []string{"outcome"}),
		modelLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_model_loads_total",
			Help: "Checkpoint loads by status.",
		}, []string{"status"}),
		modelLoadTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "triage_model_load_duration_seconds",
			Help:    "Checkpoint load latency in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		idempotency: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_idempotency_checks_total",
			Help: "Idempotency key checks by result (accepted/duplicate/error).",
		}, []string{"result"}),
		verdictWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_verdict_log_writes_total",
			Help: "Verdict audit log writes by status.",
		}, []string{"status"}),
		pgStats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "triage_verdict_db_stats",
			Help: "Verdict database connection pool stats.",
		}, []string{"metric"}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "triage_redis_up",
			Help: "Redis connectivity (1=up, 0=down).",
		}),
		redisPing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "triage_redis_ping_seconds",
			Help: "Redis ping latency in seconds.",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.verdicts, m.scores, m.agentRuns, m.agentLatency,
		m.retrievals, m.modelLoads, m.modelLoadTime,
		m.idempotency, m.verdictWrites,
		m.pgStats, m.redisUp, m.redisPing,
	)
	return m
}

// Handler serves the exposition format. A nil Metrics answers 503.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveVerdict(kind, verdict string, score float64) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(kind, verdict).Inc()
	m.scores.WithLabelValues(kind).Observe(score)
}

// ObserveAgent satisfies supervisor.Observer.
func (m *Metrics) ObserveAgent(agent string, d time.Duration, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failed"
	}
	m.agentRuns.WithLabelValues(agent, status).Inc()
	m.agentLatency.WithLabelValues(agent).Observe(d.Seconds())
}

// ObserveRetrieval satisfies gnn.RetrievalObserver.
func (m *Metrics) ObserveRetrieval(outcome string) {
	if m == nil {
		return
	}
	m.retrievals.WithLabelValues(outcome).Inc()
}

// ObserveModelLoad satisfies registry.LoadObserver.
func (m *Metrics) ObserveModelLoad(path string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.modelLoads.WithLabelValues(status).Inc()
	m.modelLoadTime.Observe(d.Seconds())
}

func (m *Metrics) IncIdempotency(result string) {
	if m == nil {
		return
	}
	m.idempotency.WithLabelValues(result).Inc()
}

func (m *Metrics) IncVerdictWrite(status string) {
	if m == nil {
		return
	}
	m.verdictWrites.WithLabelValues(status).Inc()
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		if log != nil {
			log.Warn("metrics: verdict db stats unavailable", "error", err)
		}
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := sqlDB.Stats()
				m.pgStats.WithLabelValues("open_connections").Set(float64(stats.OpenConnections))
				m.pgStats.WithLabelValues("in_use").Set(float64(stats.InUse))
				m.pgStats.WithLabelValues("idle").Set(float64(stats.Idle))
				m.pgStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
				m.pgStats.WithLabelValues("wait_duration_seconds").Set(stats.WaitDuration.Seconds())
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}
