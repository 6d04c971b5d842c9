package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/sprout/internal/greens/entity"
	"gorm.io/gorm"
)

// GrowingRepository 种植仓储
type GrowingRepository struct {
	db *gorm.DB
}

// NewGrowingRepository 创建种植仓储
func NewGrowingRepository(db *gorm.DB) *GrowingRepository {
	return &GrowingRepository{db: db}
}

// FindUnitByID 根据ID查找托盘
func (r *GrowingRepository) FindUnitByID(ctx context.Context, id string) (*entity.GrowingUnit, error) {
	var unit entity.GrowingUnit
	err := r.db.WithContext(ctx).
		Preload("Variety").
		Where("id = ?", id).
		First(&unit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &unit, nil
}

// FindUnitsByIDs 批量查找托盘
func (r *GrowingRepository) FindUnitsByIDs(ctx context.Context, ids []string) ([]entity.GrowingUnit, error) {
	var units []entity.GrowingUnit
	err := r.db.WithContext(ctx).
		Preload("Variety").
		Where("id IN ?", ids).
		Find(&units).Error
	return units, err
}

// ListByOrder 获取订单的全部托盘
func (r *GrowingRepository) ListByOrder(ctx context.Context, orderID string) ([]entity.GrowingUnit, error) {
	var units []entity.GrowingUnit
	err := r.db.WithContext(ctx).
		Preload("Variety").
		Where("order_id = ?", orderID).
		Order("tray_number ASC").
		Find(&units).Error
	return units, err
}

// ListByPlan 获取计划的全部托盘
func (r *GrowingRepository) ListByPlan(ctx context.Context, planID string) ([]entity.GrowingUnit, error) {
	var units []entity.GrowingUnit
	err := r.db.WithContext(ctx).
		Preload("Variety").
		Where("plan_id = ?", planID).
		Order("tray_number ASC").
		Find(&units).Error
	return units, err
}

// CountByPlan 统计计划已有托盘数
func (r *GrowingRepository) CountByPlan(ctx context.Context, planID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.GrowingUnit{}).
		Where("plan_id = ?", planID).
		Count(&count).Error
	return count, err
}

// ListActive 获取所有未终结的托盘（定时就绪扫描使用）
func (r *GrowingRepository) ListActive(ctx context.Context) ([]entity.GrowingUnit, error) {
	var units []entity.GrowingUnit
	err := r.db.WithContext(ctx).
		Preload("Variety").
		Where("current_stage NOT IN ?", []string{entity.StageHarvested, entity.StageCancelled}).
		Find(&units).Error
	return units, err
}

// List 分页获取托盘列表
func (r *GrowingRepository) List(ctx context.Context, page, pageSize int, filters map[string]interface{}) ([]entity.GrowingUnit, int64, error) {
	var units []entity.GrowingUnit
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.GrowingUnit{})
	if stage, ok := filters["stage"]; ok && stage != "" {
		query = query.Where("current_stage = ?", stage)
	}
	if varietyID, ok := filters["variety_id"]; ok && varietyID != "" {
		query = query.Where("variety_id = ?", varietyID)
	}
	if planID, ok := filters["plan_id"]; ok && planID != "" {
		query = query.Where("plan_id = ?", planID)
	}
	if orderID, ok := filters["order_id"]; ok && orderID != "" {
		query = query.Where("order_id = ?", orderID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Variety").
		Order("tray_number ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&units).Error
	return units, total, err
}

// CreateBatch 创建批次及其托盘
func (r *GrowingRepository) CreateBatch(ctx context.Context, batch *entity.GrowingBatch, units []entity.GrowingUnit) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(batch).Error; err != nil {
			return err
		}
		if len(units) > 0 {
			if err := tx.Create(&units).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// FindBatchByID 根据ID查找批次（含托盘）
func (r *GrowingRepository) FindBatchByID(ctx context.Context, id string) (*entity.GrowingBatch, error) {
	var batch entity.GrowingBatch
	err := r.db.WithContext(ctx).
		Preload("Variety").
		Preload("Units").
		Where("id = ?", id).
		First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// UpdateUnit 更新托盘
func (r *GrowingRepository) UpdateUnit(ctx context.Context, unit *entity.GrowingUnit) error {
	return r.db.WithContext(ctx).Save(unit).Error
}

// AddLog 添加托盘操作历史
func (r *GrowingRepository) AddLog(ctx context.Context, log *entity.CropLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// ListLogs 获取托盘操作历史
func (r *GrowingRepository) ListLogs(ctx context.Context, unitID string) ([]entity.CropLog, error) {
	var logs []entity.CropLog
	err := r.db.WithContext(ctx).
		Where("unit_id = ?", unitID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}

// NextTrayNumber 生成托盘编号
func (r *GrowingRepository) NextTrayNumber(ctx context.Context) (string, error) {
	var seq int
	err := r.db.WithContext(ctx).Raw("SELECT nextval('tray_number_seq')").Scan(&seq).Error
	if err != nil {
		return "", err
	}
	year := time.Now().Year() % 100
	return fmt.Sprintf("T%02d-%05d", year, seq), nil
}
