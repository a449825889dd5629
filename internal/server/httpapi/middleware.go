package httpapi

import (
	"errors"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/and161185/tasklist/internal/service"
	"github.com/and161185/tasklist/internal/wire"
)

// RequestLogger logs request metadata; payloads are never logged.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		log.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", c.ClientIP()),
		)
	}
}

// Recovery turns panics into 500 responses.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("route", c.FullPath()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, wire.Error{Code: wire.CodeInternal, Message: "internal"})
			}
		}()
		c.Next()
	}
}

// Metrics holds the HTTP collectors.
type Metrics struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	loginLockouts prometheus.Counter
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasklist_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tasklist_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		loginLockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tasklist_login_rate_limited_total",
			Help: "Password logins rejected by the rate limiter",
		}),
	}
	reg.MustRegister(m.requests, m.duration, m.loginLockouts)
	return m
}

// Middleware records request count and latency.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) rateLimited() {
	if m != nil {
		m.loginLockouts.Inc()
	}
}

// RequireUser verifies the bearer token and stores the subject in the request context.
// code is the error code reported on failure, so auth and table routes keep their own vocabularies.
func RequireUser(auth service.AuthService, code string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, wire.Error{Code: code, Message: err.Error()})
			return
		}
		id, err := auth.ParseAccessToken(tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, wire.Error{Code: code, Message: "invalid or expired token"})
			return
		}
		c.Request = c.Request.WithContext(WithUserID(c.Request.Context(), id))
		c.Next()
	}
}

func bearerToken(header string) (string, error) {
	v := strings.TrimSpace(header)
	if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
		if t := strings.TrimSpace(v[7:]); t != "" {
			return t, nil
		}
	}
	return "", errors.New("no bearer token")
}
