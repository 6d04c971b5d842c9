package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/sprout/internal/greens/service"
)

type VarietyHandler struct {
	svc *service.VarietyService
}

func NewVarietyHandler(svc *service.VarietyService) *VarietyHandler {
	return &VarietyHandler{svc: svc}
}

// List GET /varieties
func (h *VarietyHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.List(c.Request.Context(), page, pageSize)
	if err != nil {
		InternalError(c, "获取品种列表失败: "+err.Error())
		return
	}
	Success(c, ListResponse{Items: items, Pagination: NewPagination(page, pageSize, total)})
}

// Get GET /varieties/:id
func (h *VarietyHandler) Get(c *gin.Context) {
	v, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, v)
}

// Create POST /varieties
func (h *VarietyHandler) Create(c *gin.Context) {
	var req service.VarietyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	v, err := h.svc.Create(c.Request.Context(), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, v)
}

// Update PUT /varieties/:id
func (h *VarietyHandler) Update(c *gin.Context) {
	var req service.VarietyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	v, err := h.svc.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, v)
}
