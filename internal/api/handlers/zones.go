package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/apexdns/internal/api/models"
	"github.com/jroosing/apexdns/internal/zone"
)

// GetZone godoc
// @Summary Published zone summary
// @Description Returns the origin, serial and size of the zone now serving queries
// @Tags zone
// @Produce json
// @Success 200 {object} models.ZoneResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /zone [get]
func (h *Handler) GetZone(c *gin.Context) {
	z := h.deps.Zones.Current()
	if z == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "no zone loaded"})
		return
	}
	c.JSON(http.StatusOK, models.ZoneResponse{
		Origin:      z.Origin,
		Serial:      z.Serial,
		NameCount:   z.NameCount(),
		RecordCount: len(z.Records()),
		LoadedAt:    z.LoadedAt,
	})
}

// ReloadZone godoc
// @Summary Reload the zone file
// @Description Parses the configured zone file and atomically publishes it; a failed load keeps the running zone
// @Tags zone
// @Produce json
// @Success 200 {object} models.ZoneResponse
// @Failure 500 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /zone/reload [post]
func (h *Handler) ReloadZone(c *gin.Context) {
	z, err := zone.Load(h.deps.ZoneFile)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("zone reload failed", "file", h.deps.ZoneFile, "err", err)
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}
	h.deps.Zones.Swap(z)
	if h.logger != nil {
		h.logger.Info("zone reloaded", "file", h.deps.ZoneFile, "serial", z.Serial)
	}
	c.JSON(http.StatusOK, models.ZoneResponse{
		Origin:      z.Origin,
		Serial:      z.Serial,
		NameCount:   z.NameCount(),
		RecordCount: len(z.Records()),
		LoadedAt:    z.LoadedAt,
	})
}
