package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/sprout/internal/greens/service"
)

type PlanHandler struct {
	svc        *service.PlanService
	growingSvc *service.GrowingService
}

func NewPlanHandler(svc *service.PlanService, growingSvc *service.GrowingService) *PlanHandler {
	return &PlanHandler{svc: svc, growingSvc: growingSvc}
}

// List GET /plans
func (h *PlanHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]interface{}{
		"status":       c.Query("status"),
		"variety_id":   c.Query("variety_id"),
		"harvest_from": c.Query("harvest_from"),
		"harvest_to":   c.Query("harvest_to"),
	}
	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取计划列表失败: "+err.Error())
		return
	}
	Success(c, ListResponse{Items: items, Pagination: NewPagination(page, pageSize, total)})
}

// Get GET /plans/:id
func (h *PlanHandler) Get(c *gin.Context) {
	plan, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, plan)
}

// Contributors GET /plans/:id/contributors
func (h *PlanHandler) Contributors(c *gin.Context) {
	contributors, err := h.svc.ListContributors(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, "获取计划贡献明细失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": contributors})
}

// Approve POST /plans/:id/approve
func (h *PlanHandler) Approve(c *gin.Context) {
	plan, err := h.svc.ApprovePlan(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, plan)
}

// Start POST /plans/:id/start
func (h *PlanHandler) Start(c *gin.Context) {
	batch, err := h.growingSvc.StartPlan(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, batch)
}

// Cancel POST /plans/:id/cancel
func (h *PlanHandler) Cancel(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	if err := h.svc.CancelPlan(c.Request.Context(), c.Param("id"), GetUserID(c), req.Reason); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}
