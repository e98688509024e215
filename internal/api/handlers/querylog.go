package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/apexdns/internal/api/models"
)

// QueryLog godoc
// @Summary Recent queries
// @Description Returns the most recent sampled queries, newest first
// @Tags querylog
// @Produce json
// @Param limit query int false "Maximum entries (default 100, max 1000)"
// @Success 200 {object} models.QueryLogResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /querylog [get]
func (h *Handler) QueryLog(c *gin.Context) {
	if h.deps.QueryLog == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "query log disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := h.deps.QueryLog.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.QueryLogResponse{
		Entries: entries,
		Dropped: h.deps.QueryLog.Dropped(),
	})
}
