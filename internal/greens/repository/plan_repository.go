package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/sprout/internal/greens/entity"
	"gorm.io/gorm"
)

// PlanRepository 生产计划仓储
type PlanRepository struct {
	db *gorm.DB
}

// NewPlanRepository 创建生产计划仓储
func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// FindByID 根据ID查找计划
func (r *PlanRepository) FindByID(ctx context.Context, id string) (*entity.ProductionPlan, error) {
	var plan entity.ProductionPlan
	err := r.db.WithContext(ctx).
		Preload("Variety").
		Preload("Contributors").
		Where("id = ?", id).
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &plan, nil
}

// ListByOrder 获取订单贡献的全部计划
func (r *PlanRepository) ListByOrder(ctx context.Context, orderID string) ([]entity.ProductionPlan, error) {
	var plans []entity.ProductionPlan
	err := r.db.WithContext(ctx).
		Preload("Variety").
		Preload("Contributors").
		Joins("JOIN plan_contributors pc ON pc.plan_id = production_plans.id").
		Where("pc.order_id = ? AND pc.status = ?", orderID, entity.ContributorStatusActive).
		Group("production_plans.id").
		Find(&plans).Error
	return plans, err
}

// List 分页获取计划列表
func (r *PlanRepository) List(ctx context.Context, page, pageSize int, filters map[string]interface{}) ([]entity.ProductionPlan, int64, error) {
	var plans []entity.ProductionPlan
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ProductionPlan{})
	if status, ok := filters["status"]; ok && status != "" {
		query = query.Where("status = ?", status)
	}
	if varietyID, ok := filters["variety_id"]; ok && varietyID != "" {
		query = query.Where("variety_id = ?", varietyID)
	}
	if from, ok := filters["harvest_from"]; ok && from != "" {
		query = query.Where("harvest_date >= ?", from)
	}
	if to, ok := filters["harvest_to"]; ok && to != "" {
		query = query.Where("harvest_date <= ?", to)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Variety").
		Order("harvest_date ASC, created_at ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&plans).Error
	return plans, total, err
}

// Create 创建计划
func (r *PlanRepository) Create(ctx context.Context, plan *entity.ProductionPlan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}

// Update 更新计划
func (r *PlanRepository) Update(ctx context.Context, plan *entity.ProductionPlan) error {
	return r.db.WithContext(ctx).Save(plan).Error
}

// ListContributors 获取计划的贡献订单（含已移除，按创建顺序）
func (r *PlanRepository) ListContributors(ctx context.Context, planID string) ([]entity.PlanContributor, error) {
	var contributors []entity.PlanContributor
	err := r.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("created_at ASC").
		Find(&contributors).Error
	return contributors, err
}

// ListActiveContributors 获取计划的活跃贡献订单
func (r *PlanRepository) ListActiveContributors(ctx context.Context, planID string) ([]entity.PlanContributor, error) {
	var contributors []entity.PlanContributor
	err := r.db.WithContext(ctx).
		Where("plan_id = ? AND status = ?", planID, entity.ContributorStatusActive).
		Order("created_at ASC").
		Find(&contributors).Error
	return contributors, err
}
