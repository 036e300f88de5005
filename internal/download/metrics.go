package download

import "github.com/prometheus/client_golang/prometheus"

// Job outcomes used as metric labels.
const (
	outcomeDownloaded = "downloaded"
	outcomeError      = "error"
	outcomeAborted    = "aborted"
)

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "enginectl",
			Subsystem: "download",
			Name:      "jobs_total",
			Help:      "Total number of finished download jobs",
		},
		[]string{"type", "outcome"},
	)

	bytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "enginectl",
			Subsystem: "download",
			Name:      "bytes_total",
			Help:      "Total bytes written by download transfers",
		},
		[]string{"type"},
	)

	activeJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "enginectl",
			Subsystem: "download",
			Name:      "active_jobs",
			Help:      "Download jobs currently registered",
		},
	)
)

func init() {
	prometheus.MustRegister(jobsTotal, bytesTotal, activeJobs)
}

func typeLabel(t string) string {
	if t == "" {
		return "unspecified"
	}
	return t
}
