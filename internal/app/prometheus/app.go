package prometheusapp

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	authhttp "github.com/renshs/auth/internal/http/auth"
	"github.com/renshs/auth/internal/lib/logger/sl"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type App struct {
	log  *slog.Logger
	port int
	reg  *prometheus.Registry

	panicsTotal prometheus.Counter
	reqDuration *prometheus.HistogramVec

	FailedLoginsCounter *prometheus.CounterVec
	LockoutsCounter     prometheus.Counter
}

func New(log *slog.Logger, port int) *App {
	reg := prometheus.NewRegistry()

	reqDuration := promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of handled HTTP requests.",
		Buckets: []float64{0.001, 0.01, 0.1, 0.3, 0.6, 1, 3, 6},
	}, []string{"method", "path", "status"})

	panicsTotal := promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "http_req_panics_recovered_total",
		Help: "Total number of HTTP requests recovered from internal panic.",
	})

	failedLogins := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "failed_login_attempts_total",
		Help: "Total number of failed login attempts.",
	}, []string{"username"})

	lockouts := promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "account_lockouts_total",
		Help: "Total number of accounts transitioned into lockout.",
	})

	return &App{
		log:                 log,
		port:                port,
		reg:                 reg,
		panicsTotal:         panicsTotal,
		reqDuration:         reqDuration,
		FailedLoginsCounter: failedLogins,
		LockoutsCounter:     lockouts,
	}
}

// MetricsMiddleware records a duration sample for every handled request.
func (a *App) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		a.reqDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// RecoveryHandler counts recovered panics and answers with a generic error.
func (a *App) RecoveryHandler() gin.RecoveryFunc {
	return func(c *gin.Context, err any) {
		a.panicsTotal.Inc()
		a.log.Error("recovered from panic", slog.Any("panic", err), slog.String("stack", string(debug.Stack())))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"ok":      false,
			"message": authhttp.ErrInternal,
		})
	}
}

func (a *App) MustRun() {
	err := a.Run()
	if errors.Is(err, http.ErrServerClosed) {
		a.log.Info("Prometheus server closed", sl.Err(err))
	} else if err != nil {
		a.log.Error("failed to start Prometheus", sl.Err(err))
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "prometheusapp.Run"
	log := a.log.With(slog.String("op", op), slog.Int("port", a.port))

	log.Info("exposing Prometheus metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		a.reg,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	))

	return http.ListenAndServe(fmt.Sprintf(":%d", a.port), mux)
}
