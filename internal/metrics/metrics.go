package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg             *prometheus.Registry
	RecordsReceived prometheus.Counter
	Faults          *prometheus.CounterVec
	EventsMapped    *prometheus.CounterVec
	Uploads         *prometheus.CounterVec
	UploadLatency   prometheus.Histogram
	Inflight        prometheus.Gauge
	SinkErrors      prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	received := prometheus.NewCounter(prometheus.CounterOpts{Name: "evfwd_records_received_total"})
	faults := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "evfwd_faults_total"}, []string{"kind"})
	mapped := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "evfwd_events_mapped_total"}, []string{"kind"})
	uploads := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "evfwd_uploads_total"}, []string{"status"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "evfwd_upload_latency_seconds",
		Buckets: prometheus.DefBuckets,
	})
	inflight := prometheus.NewGauge(prometheus.GaugeOpts{Name: "evfwd_inflight_records"})
	sinkErrors := prometheus.NewCounter(prometheus.CounterOpts{Name: "evfwd_sink_errors_total"})

	r.MustRegister(received, faults, mapped, uploads, latency, inflight, sinkErrors)
	return &Registry{
		reg:             r,
		RecordsReceived: received,
		Faults:          faults,
		EventsMapped:    mapped,
		Uploads:         uploads,
		UploadLatency:   latency,
		Inflight:        inflight,
		SinkErrors:      sinkErrors,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
