// Package metrics instruments each role's HTTP surface and a small set
// of protocol-level counters, grounded on the teacher's
// metrics/measured_http package: a ServeMux wrapper that records a
// response_time histogram per endpoint/method/status, timed through an
// injectable github.com/jmhodges/clock.Clock rather than time.Now
// directly so tests can swap in a fake clock.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
)

var responseTime = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "brski_prm_response_time_seconds",
		Help: "Time taken to respond to a BRSKI-PRM request",
	},
	[]string{"endpoint", "method", "code"})

func init() {
	prometheus.MustRegister(responseTime)
}

type responseWriterWithStatus struct {
	http.ResponseWriter
	code int
}

func (r *responseWriterWithStatus) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// MeasuredMux wraps an http.ServeMux, recording a response-time
// observation for every request against the mux's matched pattern.
type MeasuredMux struct {
	*http.ServeMux
	clk  clock.Clock
	stat *prometheus.HistogramVec
}

// NewMeasuredMux wraps mux, timing requests with clk.
func NewMeasuredMux(mux *http.ServeMux, clk clock.Clock) *MeasuredMux {
	return &MeasuredMux{ServeMux: mux, clk: clk, stat: responseTime}
}

func (m *MeasuredMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	begin := m.clk.Now()
	rwws := &responseWriterWithStatus{ResponseWriter: w, code: http.StatusOK}

	subHandler, pattern := m.Handler(r)
	defer func() {
		m.stat.With(prometheus.Labels{
			"endpoint": pattern,
			"method":   r.Method,
			"code":     fmt.Sprintf("%d", rwws.code),
		}).Observe(m.clk.Since(begin).Seconds())
	}()

	subHandler.ServeHTTP(rwws, r)
}
