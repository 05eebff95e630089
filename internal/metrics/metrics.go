package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "resumable"

var (
	UploadAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upload",
		Name:      "attempts_total",
		Help:      "Chunk upload attempts by operation and result.",
	}, []string{"operation", "result"})

	SessionResets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upload",
		Name:      "session_resets_total",
		Help:      "Queries of the committed size of a resumable session.",
	})

	ReadReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "download",
		Name:      "reconnects_total",
		Help:      "Download resumptions after a failed read.",
	}, []string{"reason"})

	ComposeCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "parallel",
		Name:      "compose_calls_total",
		Help:      "Compose requests issued by parallel uploads.",
	}, []string{"stage"})

	CleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "parallel",
		Name:      "cleanup_failures_total",
		Help:      "Temporary objects that could not be deleted.",
	})

	EmulatorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "emulator",
		Name:      "requests_total",
		Help:      "Requests served by the emulator by route and status.",
	}, []string{"route", "code"})
)
