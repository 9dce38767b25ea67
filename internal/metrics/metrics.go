package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HeartbeatsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rssbox",
		Name:      "heartbeats_total",
		Help:      "Total number of worker heartbeats sent.",
	})

	ReaperReclaimsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rssbox",
		Name:      "reaper_reclaims_total",
		Help:      "Total number of leases reclaimed by the reaper, by kind.",
	}, []string{"kind"})

	AccountStateTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rssbox",
		Name:      "account_state_transitions_total",
		Help:      "Total account state transitions by from/to state.",
	}, []string{"from", "to"})

	DownloadsQueuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rssbox",
		Name:      "downloads_queued_total",
		Help:      "Total downloads queued from the feed.",
	})

	DownloadsCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rssbox",
		Name:      "downloads_completed_total",
		Help:      "Total downloads that reached COMPLETED.",
	})

	DownloadsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rssbox",
		Name:      "downloads_failed_total",
		Help:      "Total failed download attempts, including retries.",
	})

	DownloadsRetiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rssbox",
		Name:      "downloads_retired_total",
		Help:      "Total downloads dropped after exhausting their retry budget.",
	})

	DownloadsTimedOutTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rssbox",
		Name:      "downloads_timed_out_total",
		Help:      "Total downloads that exceeded the torrent-cache deadline.",
	})

	PendingDownloads = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rssbox",
		Name:      "pending_downloads",
		Help:      "Current number of downloads waiting to be claimed.",
	})

	FreeAccounts = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rssbox",
		Name:      "free_accounts",
		Help:      "Current number of IDLE accounts available to claim.",
	})

	UploadedFilesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rssbox",
		Name:      "uploaded_files_total",
		Help:      "Total files pushed to the object store.",
	})

	UploadedBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rssbox",
		Name:      "uploaded_bytes_total",
		Help:      "Total bytes pushed to the object store.",
	})

	CheckDownloadsDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rssbox",
		Name:      "check_downloads_duration_seconds",
		Help:      "Duration of a single check_downloads pass.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 30, 60, 120, 300, 480},
	})

	FeedPollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rssbox",
		Name:      "feed_poll_duration_seconds",
		Help:      "Duration of a single feed poll.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rssbox",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rssbox",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HeartbeatsTotal,
		ReaperReclaimsTotal,
		AccountStateTransitionsTotal,
		DownloadsQueuedTotal,
		DownloadsCompletedTotal,
		DownloadsFailedTotal,
		DownloadsRetiredTotal,
		DownloadsTimedOutTotal,
		PendingDownloads,
		FreeAccounts,
		UploadedFilesTotal,
		UploadedBytesTotal,
		CheckDownloadsDuration,
		FeedPollDuration,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}
