package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OTPMetrics groups the collectors recorded by the OTP lifecycle manager
type OTPMetrics struct {
	IssueTotal       *prometheus.CounterVec
	VerifyTotal      *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	ExpiredSwept     prometheus.Counter
}

// NewOTPMetrics registers the OTP collectors on reg
func NewOTPMetrics(reg prometheus.Registerer) *OTPMetrics {
	factory := promauto.With(reg)
	return &OTPMetrics{
		IssueTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otp_issue_total",
				Help: "OTP issue requests by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		VerifyTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otp_verify_total",
				Help: "OTP verification requests by outcome",
			},
			[]string{"outcome"},
		),
		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "otp_dispatch_duration_seconds",
				Help:    "Time spent handing codes to the delivery gateway",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"channel"},
		),
		ExpiredSwept: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "otp_expired_swept_total",
				Help: "Expired OTP records removed by the background sweep",
			},
		),
	}
}

// Handler exposes the registry in the prometheus text format
func Handler(gatherer prometheus.Gatherer) gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
