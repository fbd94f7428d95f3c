// Package metrics declares the prometheus collectors GridDFS's coordinator
// and data node expose, as package-level prometheus.New*Vec values
// registered into a caller-supplied registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Coordinator metrics.

	UploadPlansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "griddfs_upload_plans_total",
			Help: "Total number of create-upload-plan requests by outcome",
		},
		[]string{"outcome"},
	)

	DownloadPlansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "griddfs_download_plans_total",
			Help: "Total number of get-download-plan requests by outcome",
		},
		[]string{"outcome"},
	)

	StorageConfirmationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "griddfs_storage_confirmations_total",
			Help: "Total number of storage_confirmed messages processed by status",
		},
		[]string{"status"},
	)

	ActiveNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "griddfs_active_nodes",
			Help: "Number of storage nodes currently considered active",
		},
	)

	// Data node metrics.

	BlocksStoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "griddfs_blocks_stored_total",
			Help: "Total number of store_block messages processed by decision",
		},
		[]string{"decision"},
	)

	BlockRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "griddfs_block_requests_total",
			Help: "Total number of request_block messages served by outcome",
		},
		[]string{"outcome"},
	)

	StorageUsedBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "griddfs_storage_used_bytes",
			Help: "Bytes currently used on this storage node",
		},
	)

	StorageCapacityBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "griddfs_storage_capacity_bytes",
			Help: "Total advertised storage capacity on this node",
		},
	)
)

// RegisterCoordinator registers the coordinator-side collectors on reg.
func RegisterCoordinator(reg prometheus.Registerer) {
	reg.MustRegister(UploadPlansTotal, DownloadPlansTotal, StorageConfirmationsTotal, ActiveNodes)
}

// RegisterDataNode registers the data-node-side collectors on reg.
func RegisterDataNode(reg prometheus.Registerer) {
	reg.MustRegister(BlocksStoredTotal, BlockRequestsTotal, StorageUsedBytes, StorageCapacityBytes)
}
