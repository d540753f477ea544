package metrics

import "github.com/prometheus/client_golang/prometheus"

var HttpRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests received",
	},
	[]string{"endpoint", "status", "method"},
)

var HttpRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"endpoint", "method"},
)

var TemplateOperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "template_operations_total",
		Help: "Total number of template store write operations",
	},
	[]string{"op", "status"},
)

var TemplateRendersTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "template_renders_total",
		Help: "Total number of rendered templates",
	},
)

var TemplateMissingVariablesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "template_missing_variables_total",
		Help: "Total number of variables left empty while rendering",
	},
)

var MigratedRecordsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "template_migrated_records_total",
		Help: "Total number of template records changed by migrations",
	},
	[]string{"migration"},
)

// InitAPIMetrics 注册 HTTP 指标
func InitAPIMetrics() {
	prometheus.MustRegister(HttpRequestsTotal)
	prometheus.MustRegister(HttpRequestDuration)
}

// InitTemplateMetrics 注册模板相关指标
func InitTemplateMetrics() {
	prometheus.MustRegister(TemplateOperationsTotal)
	prometheus.MustRegister(TemplateRendersTotal)
	prometheus.MustRegister(TemplateMissingVariablesTotal)
	prometheus.MustRegister(MigratedRecordsTotal)
}
