package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/sprout/internal/greens/service"
)

type GrowingHandler struct {
	svc *service.GrowingService
}

func NewGrowingHandler(svc *service.GrowingService) *GrowingHandler {
	return &GrowingHandler{svc: svc}
}

// List GET /crops
func (h *GrowingHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]interface{}{
		"stage":      c.Query("stage"),
		"variety_id": c.Query("variety_id"),
		"plan_id":    c.Query("plan_id"),
		"order_id":   c.Query("order_id"),
	}
	items, total, err := h.svc.ListUnits(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取托盘列表失败: "+err.Error())
		return
	}
	Success(c, ListResponse{Items: items, Pagination: NewPagination(page, pageSize, total)})
}

// Get GET /crops/:id
func (h *GrowingHandler) Get(c *gin.Context) {
	detail, err := h.svc.GetUnit(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, detail)
}

// Logs GET /crops/:id/logs
func (h *GrowingHandler) Logs(c *gin.Context) {
	logs, err := h.svc.ListLogs(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, "获取托盘历史失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": logs})
}

// Advance POST /crops/:id/advance
func (h *GrowingHandler) Advance(c *gin.Context) {
	change, err := h.svc.AdvanceStage(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, change)
}

// AdvanceBulk POST /crops/advance
func (h *GrowingHandler) AdvanceBulk(c *gin.Context) {
	var req struct {
		UnitIDs []string `json:"unit_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	result, err := h.svc.AdvanceStageBulk(c.Request.Context(), req.UnitIDs, GetUserID(c))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, result)
}

// EditStageTime PUT /crops/:id/stage-time
func (h *GrowingHandler) EditStageTime(c *gin.Context) {
	var req struct {
		Stage string    `json:"stage" binding:"required"`
		Time  time.Time `json:"time" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	unit, err := h.svc.EditStageTime(c.Request.Context(), c.Param("id"), req.Stage, req.Time, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, unit)
}

// FlagReady POST /crops/:id/ready
func (h *GrowingHandler) FlagReady(c *gin.Context) {
	unit, err := h.svc.FlagReady(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, unit)
}

// ToggleWatering POST /crops/:id/watering
func (h *GrowingHandler) ToggleWatering(c *gin.Context) {
	unit, err := h.svc.ToggleWatering(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, unit)
}

// SetWateringBulk POST /crops/watering
func (h *GrowingHandler) SetWateringBulk(c *gin.Context) {
	var req struct {
		UnitIDs []string `json:"unit_ids" binding:"required,min=1"`
		Suspend bool     `json:"suspend"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	result, err := h.svc.SetWateringBulk(c.Request.Context(), req.UnitIDs, req.Suspend, GetUserID(c))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, result)
}

// Cancel POST /crops/:id/cancel
func (h *GrowingHandler) Cancel(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	if err := h.svc.CancelUnit(c.Request.Context(), c.Param("id"), GetUserID(c), req.Reason); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// GetBatch GET /batches/:id
func (h *GrowingHandler) GetBatch(c *gin.Context) {
	summary, err := h.svc.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, summary)
}
