package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/sprout/internal/greens/service"
)

type OrderHandler struct {
	svc     *service.OrderService
	planSvc *service.PlanService
}

func NewOrderHandler(svc *service.OrderService, planSvc *service.PlanService) *OrderHandler {
	return &OrderHandler{svc: svc, planSvc: planSvc}
}

// List GET /orders
func (h *OrderHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]interface{}{
		"status":        c.Query("status"),
		"delivery_from": c.Query("delivery_from"),
		"delivery_to":   c.Query("delivery_to"),
	}
	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取订单列表失败: "+err.Error())
		return
	}
	Success(c, ListResponse{Items: items, Pagination: NewPagination(page, pageSize, total)})
}

// Get GET /orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, order)
}

// Create POST /orders
func (h *OrderHandler) Create(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	order, err := h.svc.Create(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, order)
}

// Update PUT /orders/:id
func (h *OrderHandler) Update(c *gin.Context) {
	var req service.UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	order, err := h.svc.Update(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, order)
}

// Cancel POST /orders/:id/cancel
func (h *OrderHandler) Cancel(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	if err := h.svc.Cancel(c.Request.Context(), c.Param("id"), GetUserID(c), req.Reason); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// GeneratePlans POST /orders/:id/plans
func (h *OrderHandler) GeneratePlans(c *gin.Context) {
	result, err := h.planSvc.GeneratePlansForOrder(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, result)
}

// UpdatePlans PUT /orders/:id/plans
func (h *OrderHandler) UpdatePlans(c *gin.Context) {
	result, err := h.planSvc.UpdatePlansForOrder(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, result)
}

// ListPlans GET /orders/:id/plans
func (h *OrderHandler) ListPlans(c *gin.Context) {
	plans, err := h.planSvc.ListContributorPlans(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, "获取订单计划失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": plans})
}
