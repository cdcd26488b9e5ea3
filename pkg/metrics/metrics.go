package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics — счётчики воркера метаданных.
type Metrics interface {
	IncMessages(source, outcome string)
	IncDeadLetters(source, reason string)
	ObserveBatch(source string, size int, d time.Duration)
	ObserveBootstrap(result string, d time.Duration)
	SetConnectionState(state string)
}

// Noop реализует Metrics без отправки данных.
type Noop struct{}

func (Noop) IncMessages(string, string)              {}
func (Noop) IncDeadLetters(string, string)           {}
func (Noop) ObserveBatch(string, int, time.Duration) {}
func (Noop) ObserveBootstrap(string, time.Duration)  {}
func (Noop) SetConnectionState(string)               {}

var connectionStates = []string{"uninitialized", "bootstrapping", "ready", "failed"}

// Prom реализует Metrics поверх Prometheus.
type Prom struct {
	messages          *prometheus.CounterVec
	deadLetters       *prometheus.CounterVec
	batchSize         *prometheus.HistogramVec
	batchDuration     *prometheus.HistogramVec
	bootstrapDuration *prometheus.HistogramVec
	connectionState   *prometheus.GaugeVec
}

// NewProm регистрирует метрики в переданном registerer.
func NewProm(namespace string, reg prometheus.Registerer) *Prom {
	p := &Prom{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Classification messages handled by source and outcome",
		}, []string{"source", "outcome"}),
		deadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letters_total",
			Help:      "Messages routed to the dead-letter sink",
		}, []string{"source", "reason"}),
		batchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Messages per delivered batch",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		}, []string{"source"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time spent processing one delivered batch",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		bootstrapDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bootstrap_duration_seconds",
			Help:      "Secret retrieval plus connection establishment time by result",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current store connection state (1 for the active state)",
		}, []string{"state"}),
	}

	reg.MustRegister(p.messages, p.deadLetters, p.batchSize, p.batchDuration, p.bootstrapDuration, p.connectionState)
	p.SetConnectionState("uninitialized")
	return p
}

func (p *Prom) IncMessages(source, outcome string) {
	p.messages.WithLabelValues(source, outcome).Inc()
}

func (p *Prom) IncDeadLetters(source, reason string) {
	p.deadLetters.WithLabelValues(source, reason).Inc()
}

func (p *Prom) ObserveBatch(source string, size int, d time.Duration) {
	p.batchSize.WithLabelValues(source).Observe(float64(size))
	p.batchDuration.WithLabelValues(source).Observe(d.Seconds())
}

func (p *Prom) ObserveBootstrap(result string, d time.Duration) {
	p.bootstrapDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (p *Prom) SetConnectionState(state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		p.connectionState.WithLabelValues(s).Set(v)
	}
}

// Handler отдаёт метрики из переданного gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
