// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is private to the service so tests never collide with the default registerer.
var Registry = prometheus.NewRegistry()

var (
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cabinet_http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "path", "status"},
	)

	UploadedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cabinet_uploaded_bytes_total",
		Help: "Bytes accepted by successful uploads.",
	})

	Uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cabinet_uploads_total",
			Help: "Upload attempts by outcome.",
		},
		[]string{"result"},
	)

	QuotaRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cabinet_quota_rejections_total",
		Help: "Uploads rejected by quota admission.",
	})

	Derivatives = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cabinet_derivatives_total",
			Help: "Derivative generation runs by outcome.",
		},
		[]string{"result"},
	)

	ShareConsumptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cabinet_share_consumptions_total",
			Help: "Share resolutions by outcome.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		RequestCount,
		UploadedBytes,
		Uploads,
		QuotaRejections,
		Derivatives,
		ShareConsumptions,
		prometheus.NewGoCollector(),
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// Middleware counts requests by route pattern and status.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		RequestCount.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
