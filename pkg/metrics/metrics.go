package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	FetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vendor_monitor_fetch_total",
			Help: "Dataset fetches by domain and result (ok/retryable/fatal).",
		},
		[]string{"domain", "result"},
	)

	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vendor_monitor_fetch_duration_seconds",
			Help:    "Latency of a full dataset fetch from the analytics source.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"domain"},
	)

	AlertEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vendor_monitor_alert_events_total",
			Help: "Alert lifecycle events emitted by tab and event kind.",
		},
		[]string{"tab", "event"},
	)

	Sessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vendor_monitor_sessions",
			Help: "Registered sessions by lifecycle status.",
		},
		[]string{"status"},
	)

	BroadcastDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vendor_monitor_broadcast_dropped_total",
		Help: "Messages dropped because a subscriber buffer was full.",
	})

	LockTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vendor_monitor_lock_timeouts_total",
			Help: "Lock acquisitions that gave up after the configured timeout.",
		},
		[]string{"lock"},
	)

	RefreshHeartbeat = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vendor_monitor_refresh_heartbeat_timestamp_seconds",
		Help: "Unix time at which the last refresh cycle started.",
	})

	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vendor_monitor_refresh_cycle_duration_seconds",
		Help:    "Duration of a full refresh cycle including session processing.",
		Buckets: prometheus.DefBuckets,
	})
)

// Init 注册所有指标，进程内只调用一次
func Init() {
	prometheus.MustRegister(
		FetchTotal,
		FetchDuration,
		AlertEvents,
		Sessions,
		BroadcastDropped,
		LockTimeouts,
		RefreshHeartbeat,
		CycleDuration,
	)
}

// LockTimeout 记录一次锁超时（lockx.TimeoutHook）
func LockTimeout(lock string) {
	LockTimeouts.WithLabelValues(lock).Inc()
}
