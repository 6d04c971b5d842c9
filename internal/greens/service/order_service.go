package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bitfantasy/sprout/internal/greens/entity"
	"github.com/bitfantasy/sprout/internal/greens/events"
	"github.com/bitfantasy/sprout/internal/greens/repository"
	"github.com/bitfantasy/sprout/internal/greens/sse"
)

// OrderService 订单服务: demand intake and the event consumers that advance
// fulfillment status. Lifecycle code never writes order status directly.
type OrderService struct {
	db          *gorm.DB
	orderRepo   *repository.OrderRepository
	varietyRepo *repository.VarietyRepository
	planSvc     *PlanService
	logger      *zap.Logger
}

// NewOrderService 创建订单服务
func NewOrderService(db *gorm.DB, repos *repository.Repositories, logger *zap.Logger) *OrderService {
	return &OrderService{
		db:          db,
		orderRepo:   repos.Order,
		varietyRepo: repos.Variety,
		logger:      logger,
	}
}

// SetPlanService 注入计划服务（避免构造环）
func (s *OrderService) SetPlanService(planSvc *PlanService) {
	s.planSvc = planSvc
}

// OrderItemInput 订单行项入参
type OrderItemInput struct {
	VarietyID     string          `json:"variety_id" binding:"required"`
	GramsRequired decimal.Decimal `json:"grams_required" binding:"required"`
	HarvestDate   *time.Time      `json:"harvest_date"`
}

// CreateOrderRequest 创建订单入参
type CreateOrderRequest struct {
	CustomerName string           `json:"customer_name" binding:"required"`
	DeliveryDate time.Time        `json:"delivery_date" binding:"required"`
	Notes        string           `json:"notes"`
	Items        []OrderItemInput `json:"items" binding:"required,min=1"`
}

// Create 创建订单
func (s *OrderService) Create(ctx context.Context, userID string, req *CreateOrderRequest) (*entity.Order, error) {
	var verrs ValidationErrors
	for i, item := range req.Items {
		if item.GramsRequired.LessThanOrEqual(decimal.Zero) {
			verrs = append(verrs, FieldError{
				Field:  fmt.Sprintf("items[%d].grams_required", i),
				Reason: "must be positive",
			})
		}
		if _, err := s.varietyRepo.FindByID(ctx, item.VarietyID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				verrs = append(verrs, FieldError{
					Field:  fmt.Sprintf("items[%d].variety_id", i),
					Reason: "variety not found",
				})
				continue
			}
			return nil, err
		}
	}
	if len(verrs) > 0 {
		return nil, verrs
	}

	code, err := s.orderRepo.GenerateCode(ctx)
	if err != nil {
		return nil, err
	}

	order := &entity.Order{
		ID:           newID(),
		Code:         code,
		CustomerName: req.CustomerName,
		DeliveryDate: req.DeliveryDate,
		Status:       entity.OrderStatusPending,
		Notes:        req.Notes,
		CreatedBy:    userID,
	}
	for _, item := range req.Items {
		order.Items = append(order.Items, entity.OrderItem{
			ID:            newID(),
			OrderID:       order.ID,
			VarietyID:     item.VarietyID,
			GramsRequired: item.GramsRequired,
			HarvestDate:   item.HarvestDate,
		})
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("code", order.Code),
		zap.Int("items", len(order.Items)))
	return order, nil
}

// UpdateOrderRequest 更新订单入参，items 整体替换原有明细
type UpdateOrderRequest struct {
	CustomerName string           `json:"customer_name"`
	DeliveryDate time.Time        `json:"delivery_date" binding:"required"`
	Notes        string           `json:"notes"`
	Items        []OrderItemInput `json:"items" binding:"required,min=1"`
}

// Update 更新订单，整体替换明细；已排产的订单会触发重算
func (s *OrderService) Update(ctx context.Context, orderID, userID string, req *UpdateOrderRequest) (*entity.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Final() {
		return nil, NewBusinessError("order %s is %s and cannot be edited", order.Code, order.Status)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", order.ID).
			Delete(&entity.OrderItem{}).Error; err != nil {
			return err
		}
		order.CustomerName = req.CustomerName
		order.DeliveryDate = req.DeliveryDate
		order.Notes = req.Notes
		order.Items = nil
		for _, item := range req.Items {
			order.Items = append(order.Items, entity.OrderItem{
				ID:            newID(),
				OrderID:       order.ID,
				VarietyID:     item.VarietyID,
				GramsRequired: item.GramsRequired,
				HarvestDate:   item.HarvestDate,
			})
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(order).Error
	})
	if err != nil {
		return nil, err
	}

	if order.Status != entity.OrderStatusPending && s.planSvc != nil {
		if _, err := s.planSvc.UpdatePlansForOrder(ctx, order.ID, userID); err != nil {
			return nil, err
		}
	}
	return s.orderRepo.FindByID(ctx, order.ID)
}

// Cancel 取消订单: its contributions leave every plan; sole-contributor
// plans are cancelled with it.
func (s *OrderService) Cancel(ctx context.Context, orderID, userID, reason string) error {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Final() {
		return NewBusinessError("order %s is already %s", order.Code, order.Status)
	}

	if s.planSvc != nil {
		if err := s.planSvc.RemoveOrderFromPlans(ctx, orderID, userID, "order cancelled"); err != nil {
			return err
		}
	}
	if err := s.orderRepo.UpdateStatus(ctx, orderID, entity.OrderStatusCancelled); err != nil {
		return err
	}
	s.logger.Info("order cancelled",
		zap.String("order_id", orderID),
		zap.String("reason", reason))
	return nil
}

// Get 获取订单详情
func (s *OrderService) Get(ctx context.Context, id string) (*entity.Order, error) {
	return s.orderRepo.FindByID(ctx, id)
}

// List 分页获取订单列表
func (s *OrderService) List(ctx context.Context, page, pageSize int, filters map[string]interface{}) ([]entity.Order, int64, error) {
	return s.orderRepo.List(ctx, page, pageSize, filters)
}

// RegisterEventHandlers 订阅生命周期事件: the only writers of fulfillment
// status. Handlers are idempotent: a stale or repeated event that does not
// match the expected current status is dropped.
func (s *OrderService) RegisterEventHandlers(bus *events.Bus) {
	bus.Subscribe(events.TypeCropPlanted, func(ctx context.Context, evt events.Event) {
		s.advanceStatus(ctx, evt.OrderID,
			[]string{entity.OrderStatusPending, entity.OrderStatusPlanned},
			entity.OrderStatusGrowing)
	})
	bus.Subscribe(events.TypeAllCropsReady, func(ctx context.Context, evt events.Event) {
		s.advanceStatus(ctx, evt.OrderID,
			[]string{entity.OrderStatusGrowing},
			entity.OrderStatusReadyToHarvest)
	})
	bus.Subscribe(events.TypeOrderHarvested, func(ctx context.Context, evt events.Event) {
		s.advanceStatus(ctx, evt.OrderID,
			[]string{entity.OrderStatusGrowing, entity.OrderStatusReadyToHarvest},
			entity.OrderStatusHarvested)
	})
	bus.Subscribe(events.TypePlanReviewRequired, func(ctx context.Context, evt events.Event) {
		sse.PublishProductionEvent(events.TypePlanReviewRequired, map[string]interface{}{
			"plan_id":  evt.PlanID,
			"order_id": evt.OrderID,
		})
	})
}

func (s *OrderService) advanceStatus(ctx context.Context, orderID string, from []string, to string) {
	if orderID == "" {
		return
	}
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		s.logger.Warn("order status event for unknown order",
			zap.String("order_id", orderID), zap.Error(err))
		return
	}
	allowed := false
	for _, f := range from {
		if order.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if err := s.orderRepo.UpdateStatus(ctx, orderID, to); err != nil {
		s.logger.Error("order status update failed",
			zap.String("order_id", orderID), zap.Error(err))
		return
	}
	s.logger.Info("order status advanced",
		zap.String("order_id", orderID),
		zap.String("from", order.Status),
		zap.String("to", to))
	sse.PublishProductionEvent("order.status_changed", map[string]interface{}{
		"order_id": orderID,
		"status":   to,
	})
}
