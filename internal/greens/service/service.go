package service

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bitfantasy/sprout/internal/greens/events"
	"github.com/bitfantasy/sprout/internal/greens/repository"
)

// Services 服务集合
type Services struct {
	Variety *VarietyService
	Order   *OrderService
	Plan    *PlanService
	Growing *GrowingService
	Harvest *HarvestService
}

// NewServices 创建服务集合并完成相互注入与事件订阅
func NewServices(db *gorm.DB, repos *repository.Repositories, bus *events.Bus, logger *zap.Logger, harvestOffsetDays, minLeadDays int) *Services {
	variety := NewVarietyService(repos, logger)
	order := NewOrderService(db, repos, logger)
	plan := NewPlanService(db, repos, bus, logger, harvestOffsetDays, minLeadDays)
	growing := NewGrowingService(db, repos, bus, logger)
	harvest := NewHarvestService(db, repos, bus, logger)

	order.SetPlanService(plan)
	growing.SetPlanService(plan)
	harvest.SetServices(plan, growing)
	order.RegisterEventHandlers(bus)

	return &Services{
		Variety: variety,
		Order:   order,
		Plan:    plan,
		Growing: growing,
		Harvest: harvest,
	}
}
