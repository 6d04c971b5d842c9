package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/sprout/internal/greens/repository"
	"github.com/bitfantasy/sprout/internal/greens/service"
)

// Handlers 处理器集合
type Handlers struct {
	Variety *VarietyHandler
	Order   *OrderHandler
	Plan    *PlanHandler
	Growing *GrowingHandler
	Harvest *HarvestHandler
	SSE     *SSEHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Variety: NewVarietyHandler(svc.Variety),
		Order:   NewOrderHandler(svc.Order, svc.Plan),
		Plan:    NewPlanHandler(svc.Plan, svc.Growing),
		Growing: NewGrowingHandler(svc.Growing),
		Harvest: NewHarvestHandler(svc.Harvest),
		SSE:     NewSSEHandler(),
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse 列表响应结构
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

// Pagination 分页信息
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination 构造分页信息
func NewPagination(page, pageSize int, total int64) *Pagination {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	return &Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      int(total),
		TotalPages: totalPages,
	}
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// Fail 根据错误类型选择响应，校验错误的字段明细放在 data.errors 中
func Fail(c *gin.Context, err error) {
	var verrs service.ValidationErrors
	var berr *service.BusinessError
	var terr *service.InvalidTransitionError
	switch {
	case errors.As(err, &verrs):
		c.JSON(400, Response{
			Code:    40001,
			Message: verrs.Error(),
			Data:    gin.H{"errors": verrs},
		})
	case errors.Is(err, repository.ErrNotFound):
		NotFound(c, "资源不存在")
	case errors.As(err, &berr):
		Error(c, 42200, berr.Error())
	case errors.As(err, &terr):
		Error(c, 42201, terr.Error())
	default:
		InternalError(c, err.Error())
	}
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetPagination 从请求获取分页参数
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}
