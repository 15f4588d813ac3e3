package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus", Name: "http_requests_total", Help: "Handled HTTP requests",
	}, []string{"route", "method", "code"})
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "campus", Name: "http_request_duration_seconds", Help: "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
	HandlerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "campus", Name: "handler_errors_total", Help: "Handler errors answered with 5xx",
	})
	RequestsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus", Name: "maintenance_requests_created_total", Help: "Submitted maintenance requests",
	}, []string{"priority"})
	DispatchResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus", Name: "dispatch_cycles_total", Help: "Dispatch cycles by result",
	}, []string{"result"})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "campus", Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(HTTPRequests, HTTPDuration, HandlerErrors, RequestsCreated, DispatchResults, DBPing)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }
