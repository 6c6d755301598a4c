package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	gwRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inneri_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	gwRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inneri_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	gwSecureCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inneri_secure_calls_total",
		Help: "Total secure calls by execution mode.",
	}, []string{"mode"})

	gwSecureCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inneri_secure_call_duration_seconds",
		Help:    "Secure call pipeline duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	gwPolicyDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inneri_policy_decisions_total",
		Help: "Total policy decisions by outcome.",
	}, []string{"outcome"})

	gwUpstreamProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inneri_upstream_probes_total",
		Help: "Total upstream reachability probes by target and result.",
	}, []string{"target", "result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		gwRequestsTotal.WithLabelValues(method, path, status).Inc()
		gwRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordSecureCall records one completed secure call.
func RecordSecureCall(mode string, elapsed time.Duration) {
	gwSecureCallsTotal.WithLabelValues(mode).Inc()
	gwSecureCallDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// RecordPolicyDecision records a policy verdict.
func RecordPolicyDecision(allowed bool) {
	if allowed {
		gwPolicyDecisionsTotal.WithLabelValues("allow").Inc()
	} else {
		gwPolicyDecisionsTotal.WithLabelValues("deny").Inc()
	}
}

// RecordUpstreamProbe records a reachability probe result.
func RecordUpstreamProbe(target string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	gwUpstreamProbesTotal.WithLabelValues(target, result).Inc()
}
