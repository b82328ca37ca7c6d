package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "academy_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ResponseTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "academy_http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	CodesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "academy_referral_codes_issued_total",
		Help: "Referral codes issued",
	})

	ReferralCredits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "academy_referral_credits_total",
			Help: "Referral credit attempts by result",
		},
		[]string{"result"},
	)

	WithdrawalsRequested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "academy_withdrawals_requested_total",
			Help: "Withdrawal requests by method and result",
		},
		[]string{"method", "result"},
	)

	WithdrawalsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "academy_withdrawals_resolved_total",
			Help: "Resolved withdrawal requests by outcome",
		},
		[]string{"outcome"},
	)

	StipendsPaid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "academy_stipends_paid_total",
		Help: "Monthly stipend payments credited",
	})
)

// Middleware records request counts and latency per matched route.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		HttpRequestsTotal.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
		ResponseTimeHistogram.WithLabelValues(c.Method(), path).Observe(time.Since(start).Seconds())
		return err
	}
}
