package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/sprout/internal/greens/service"
)

type HarvestHandler struct {
	svc *service.HarvestService
}

func NewHarvestHandler(svc *service.HarvestService) *HarvestHandler {
	return &HarvestHandler{svc: svc}
}

// List GET /harvests
func (h *HarvestHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]interface{}{
		"variety_id":   c.Query("variety_id"),
		"harvest_from": c.Query("harvest_from"),
		"harvest_to":   c.Query("harvest_to"),
	}
	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取收获记录失败: "+err.Error())
		return
	}
	Success(c, ListResponse{Items: items, Pagination: NewPagination(page, pageSize, total)})
}

// Get GET /harvests/:id
func (h *HarvestHandler) Get(c *gin.Context) {
	record, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, record)
}

// Submit POST /harvests
func (h *HarvestHandler) Submit(c *gin.Context) {
	var req service.SubmitHarvestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	record, err := h.svc.Submit(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, record)
}

// Update PUT /harvests/:id
func (h *HarvestHandler) Update(c *gin.Context) {
	var req service.SubmitHarvestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	record, err := h.svc.Update(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, record)
}
