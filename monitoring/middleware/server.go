package middleware

import (
	"bufio"
	"errors"
	"github.com/prometheus/client_golang/prometheus"
	"net"
	"net/http"
	"snapgram/monitoring"
	"strconv"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack is needed by the websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

type ServerMiddleware struct {
	handler http.Handler
	label   func(*http.Request) string
}

func (m *ServerMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/metrics" {
		// Skip collecting metrics from metrics endpoint itself
		m.handler.ServeHTTP(w, r)
		return
	}
	path := m.label(r)

	// increment number of active connections
	monitoring.ActiveConnections.Inc()
	defer monitoring.ActiveConnections.Dec()

	// begin timer to measure the requests duration
	timer := prometheus.NewTimer(monitoring.HttpRequestDuration.WithLabelValues(path))
	defer timer.ObserveDuration()

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	m.handler.ServeHTTP(recorder, r)

	monitoring.HttpRequestsTotal.WithLabelValues(path, strconv.Itoa(recorder.status)).Inc()
}

// NewServerMiddleware wraps handlerToWrap. label maps a request to a bounded
// path label, usually the matched route pattern.
func NewServerMiddleware(handlerToWrap http.Handler, label func(*http.Request) string) *ServerMiddleware {
	if label == nil {
		label = func(r *http.Request) string { return r.URL.Path }
	}
	return &ServerMiddleware{handler: handlerToWrap, label: label}
}
