package domain

import "time"

// RunFilter narrows run searches. Zero values mean "no constraint".
type RunFilter struct {
	EndpointID *int64
	ProjectID  *int64
	Status     RunStatus
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// StatisticsFilter optionally narrows run statistics to a project or an
// endpoint.
type StatisticsFilter struct {
	ProjectID  *int64
	EndpointID *int64
}

// RunStatistics summarizes historical runs: counts per terminal status plus
// averages computed over completed runs only.
type RunStatistics struct {
	TotalRuns           int64               `json:"total_runs"`
	RunsByStatus        map[RunStatus]int64 `json:"runs_by_status"`
	TotalRequests       int64               `json:"total_requests"`
	AverageResponseTime float64             `json:"average_response_time"`
	AverageRps          float64             `json:"average_rps"`
}

// ExportVersion identifies the project export payload format.
const ExportVersion = "1.0"

// ProjectExport is the portable envelope for a project, its endpoints, and
// their historical runs. Snapshots are ephemeral telemetry and are not
// exported. The wire shape nests everything under "project":
//
//	{"version", "exportedAt", "project": {..., "endpoints": [{..., "executions": [...]}]}}
type ProjectExport struct {
	Version    string          `json:"version"`
	ExportedAt time.Time       `json:"exportedAt"`
	Project    ExportedProject `json:"project"`
}

// ExportedProject inlines the project fields and carries its endpoints.
type ExportedProject struct {
	Project
	Endpoints []ExportedEndpoint `json:"endpoints"`
}

// ExportedEndpoint inlines the endpoint fields and carries its run history
// under "executions".
type ExportedEndpoint struct {
	Endpoint
	Executions []Run `json:"executions"`
}
