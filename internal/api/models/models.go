// Package models defines the JSON request/response bodies of the
// management API.
package models

import (
	"time"

	"github.com/jroosing/apexdns/internal/database"
)

// StatusResponse is the health check body.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse carries an API error message.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DNSStatsResponse mirrors the server's query counters.
type DNSStatsResponse struct {
	QueriesTotal uint64 `json:"queries_total"`
	QueriesUDP   uint64 `json:"queries_udp"`
	QueriesTCP   uint64 `json:"queries_tcp"`
	NoError      uint64 `json:"noerror"`
	NXDomain     uint64 `json:"nxdomain"`
	FormErr      uint64 `json:"formerr"`
	ServFail     uint64 `json:"servfail"`
	NotImp       uint64 `json:"notimp"`
	BadVers      uint64 `json:"badvers"`
	Truncated    uint64 `json:"truncated"`
	Dropped      uint64 `json:"dropped"`
	RateLimited  uint64 `json:"rate_limited"`
}

// HostStatsResponse reports host-level resource usage.
type HostStatsResponse struct {
	CPUPercent     float64 `json:"cpu_percent"`
	MemUsedPercent float64 `json:"mem_used_percent"`
	MemUsedMB      float64 `json:"mem_used_mb"`
}

// ServerStatsResponse is the /stats body.
type ServerStatsResponse struct {
	Uptime        string             `json:"uptime"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	StartTime     time.Time          `json:"start_time"`
	GoRoutines    int                `json:"goroutines"`
	MemoryAllocMB float64            `json:"memory_alloc_mb"`
	NumCPU        int                `json:"num_cpu"`
	Host          *HostStatsResponse `json:"host,omitempty"`
	DNS           DNSStatsResponse   `json:"dns"`
}

// ZoneResponse describes the currently published zone.
type ZoneResponse struct {
	Origin      string    `json:"origin"`
	Serial      uint32    `json:"serial"`
	NameCount   int       `json:"name_count"`
	RecordCount int       `json:"record_count"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// QueryLogResponse is the /querylog body.
type QueryLogResponse struct {
	Entries []database.Entry `json:"entries"`
	Dropped uint64           `json:"dropped"`
}
