package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	derivacionesRespondidas = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "derivaciones_respondidas_total",
			Help: "Total number of institutional referrals responded",
		},
		[]string{"resultado"},
	)

	rechazosPorCupo = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "derivaciones_rechazadas_cupo_total",
			Help: "Total number of referrals rejected by quota enforcement",
		},
	)

	casosEstadoCambiado = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casos_estado_cambiado_total",
			Help: "Total number of institutional case state changes",
		},
		[]string{"estado_anterior", "estado_nuevo"},
	)

	nachecTransiciones = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nachec_transiciones_total",
			Help: "Total number of Nachec workflow transitions",
		},
		[]string{"estado_anterior", "estado_nuevo"},
	)

	inscripcionesCreadas = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inscripciones_creadas_total",
			Help: "Total number of program enrollments created",
		},
		[]string{"programa", "via_ingreso"},
	)

	alertasAusentismo = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertas_ausentismo_total",
			Help: "Total number of absence alerts raised",
		},
		[]string{"tipo"},
	)

	// Database metrics
	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes URL paths for metrics to avoid cardinality explosion
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Business metric helpers ---

// RecordDerivacionRespondida records a referral response outcome
func RecordDerivacionRespondida(resultado string) {
	derivacionesRespondidas.WithLabelValues(resultado).Inc()
}

// RecordRechazoPorCupo records a quota rejection
func RecordRechazoPorCupo() {
	rechazosPorCupo.Inc()
}

// RecordCasoEstadoCambiado records an institutional case state change
func RecordCasoEstadoCambiado(anterior, nuevo string) {
	casosEstadoCambiado.WithLabelValues(anterior, nuevo).Inc()
}

// RecordNachecTransicion records a workflow transition
func RecordNachecTransicion(anterior, nuevo string) {
	nachecTransiciones.WithLabelValues(anterior, nuevo).Inc()
}

// RecordInscripcionCreada records an enrollment creation
func RecordInscripcionCreada(programa, viaIngreso string) {
	inscripcionesCreadas.WithLabelValues(programa, viaIngreso).Inc()
}

// RecordAlertaAusentismo records an absence alert
func RecordAlertaAusentismo(tipo string) {
	alertasAusentismo.WithLabelValues(tipo).Inc()
}

// RecordDBConnections records active database connections
func RecordDBConnections(count int) {
	dbConnectionsActive.Set(float64(count))
}
