// Package handlers implements the REST endpoint handlers of the
// management API.
//
// Endpoints:
//
//   - GET /api/v1/health - liveness check
//   - GET /api/v1/stats - runtime, host and DNS statistics
//   - GET /api/v1/zone - published zone summary
//   - POST /api/v1/zone/reload - reload the zone file and swap it in
//   - GET /api/v1/querylog - recent sampled queries
//
// All endpoints except /health honor the optional X-API-Key header.
// The API binds to localhost by default; do not expose it to untrusted
// networks without a key.
//
// @title apexdns Management API
// @version 1.0
// @description REST API for inspecting and reloading the authoritative server.
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
package handlers

import (
	"log/slog"
	"time"

	"github.com/jroosing/apexdns/internal/api/models"
	"github.com/jroosing/apexdns/internal/database"
	"github.com/jroosing/apexdns/internal/zone"
)

// Deps are the collaborators the handlers read from. QueryLog may be
// nil when the query log is disabled.
type Deps struct {
	Zones     *zone.Handle
	ZoneFile  string
	DNSStats  func() models.DNSStatsResponse
	QueryLog  *database.QueryLog
	StartTime time.Time
}

// Handler carries the handler state.
type Handler struct {
	logger *slog.Logger
	deps   Deps
}

// New creates the handler set.
func New(logger *slog.Logger, deps Deps) *Handler {
	if deps.StartTime.IsZero() {
		deps.StartTime = time.Now()
	}
	return &Handler{logger: logger, deps: deps}
}
