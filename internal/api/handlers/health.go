package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/jroosing/apexdns/internal/api/models"
)

// Health godoc
// @Summary Health check
// @Description Returns server health status
// @Tags system
// @Produce json
// @Success 200 {object} models.StatusResponse
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// Stats godoc
// @Summary Server statistics
// @Description Returns runtime, host and DNS query statistics
// @Tags system
// @Produce json
// @Success 200 {object} models.ServerStatsResponse
// @Security ApiKeyAuth
// @Router /stats [get]
func (h *Handler) Stats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(h.deps.StartTime)
	resp := models.ServerStatsResponse{
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     h.deps.StartTime,
		GoRoutines:    runtime.NumGoroutine(),
		MemoryAllocMB: float64(m.Alloc) / 1024 / 1024,
		NumCPU:        runtime.NumCPU(),
		Host:          hostStats(),
	}
	if h.deps.DNSStats != nil {
		resp.DNS = h.deps.DNSStats()
	}
	c.JSON(http.StatusOK, resp)
}

// hostStats samples host CPU and memory via gopsutil. A memory sampling
// failure yields nil and a CPU sampling failure leaves CPUPercent at
// zero; no error is returned, host metrics are best effort.
func hostStats() *models.HostStatsResponse {
	out := &models.HostStatsResponse{}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		out.CPUPercent = percents[0]
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil
	}
	out.MemUsedPercent = vm.UsedPercent
	out.MemUsedMB = float64(vm.Used) / 1024 / 1024
	return out
}
