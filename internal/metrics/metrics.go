package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calendar_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calendar_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 审批工作流指标
var (
	// EventTransitionsTotal 事件状态流转总数
	EventTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calendar_event_transitions_total",
			Help: "事件状态流转总数（created/approved/rejected/deleted）",
		},
		[]string{"action", "status"},
	)

	// CalendarSyncFailuresTotal 外部日历同步失败总数
	CalendarSyncFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calendar_sync_failures_total",
			Help: "外部日历同步失败总数",
		},
		[]string{"operation"},
	)

	// WebSocketConnectionsGauge 当前 WebSocket 连接数
	WebSocketConnectionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "calendar_websocket_connections",
			Help: "当前 WebSocket 连接数",
		},
	)

	// EmailEnqueueFailuresTotal 邮件入队失败总数
	EmailEnqueueFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "calendar_email_enqueue_failures_total",
			Help: "邮件任务入队失败总数",
		},
	)
)
