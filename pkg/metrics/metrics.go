package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 1. TRAFFIC (Request Volume)
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status_code", "server_id"})

	DataTransferBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "data_transfer_bytes_total",
		Help: "Total bytes transferred",
	}, []string{"operation", "server_id"})
)

// 2. LATENCY (Response Time)
var (
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
	}, []string{"method", "endpoint", "server_id"})

	ChunkWriteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chunk_write_duration_seconds",
		Help:    "Chunk write duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
	}, []string{"server_id"})

	FinalizeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "finalize_duration_seconds",
		Help:    "Finalization duration in seconds (digest + peek + CAS)",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
	}, []string{"server_id"})
)

// 3. ERRORS (Error Rate)
var (
	HTTPErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_errors_total",
		Help: "Total number of HTTP errors",
	}, []string{"method", "endpoint", "status_code", "error_type", "server_id"})

	StoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metadata_store_errors_total",
		Help: "Total number of metadata store operation errors",
	}, []string{"operation", "server_id"})
)

// 4. SATURATION (Resource Utilization)
var (
	StorageUsedBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storage_used_bytes",
		Help: "Used storage in bytes",
	}, []string{"server_id"})

	ActiveConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "active_connections",
		Help: "Number of established TCP connections on the host",
	}, []string{"server_id"})
)

// === UPLOAD SESSION SPECIFIC ===

var (
	UploadSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upload_sessions_total",
		Help: "Total number of upload sessions created",
	}, []string{"server_id"})

	UploadSessionsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upload_sessions_completed_total",
		Help: "Total number of upload sessions that reached COMPLETED",
	}, []string{"server_id"})

	UploadSessionsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upload_sessions_failed_total",
		Help: "Total number of upload sessions that reached FAILED",
	}, []string{"server_id"})

	ChunksReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chunks_received_total",
		Help: "Total number of chunks durably received",
	}, []string{"server_id"})

	ChunksRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chunks_rejected_total",
		Help: "Total number of chunks rejected (length mismatch or write error)",
	}, []string{"reason", "server_id"})

	JanitorSessionsDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "janitor_sessions_deleted_total",
		Help: "Total number of expired upload sessions reclaimed by the janitor",
	}, []string{"server_id"})

	JanitorScratchFilesDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "janitor_scratch_files_deleted_total",
		Help: "Total number of stale scratch files reclaimed by the janitor",
	}, []string{"server_id"})

	JanitorSweepDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "janitor_sweep_duration_seconds",
		Help: "Duration of the most recent janitor sweep",
	}, []string{"server_id"})
)
