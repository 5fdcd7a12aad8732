package handler

import (
	"adengine/pkg/response"

	"github.com/gin-gonic/gin"
)

// TriggerJob 手动执行一次调度任务，返回处理统计
// POST /api/v1/admin/scheduler/:job
func (h *Handler) TriggerJob(c *gin.Context) {
	rep, err := h.scheduler.Trigger(c.Request.Context(), c.Param("job"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, rep)
}

// ListJobs GET /api/v1/admin/scheduler
func (h *Handler) ListJobs(c *gin.Context) {
	response.Success(c, gin.H{"jobs": h.scheduler.Jobs()})
}
