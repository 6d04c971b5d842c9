package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/sprout/internal/greens/entity"
	"gorm.io/gorm"
)

// HarvestRepository 收获仓储
type HarvestRepository struct {
	db *gorm.DB
}

// NewHarvestRepository 创建收获仓储
func NewHarvestRepository(db *gorm.DB) *HarvestRepository {
	return &HarvestRepository{db: db}
}

// DB exposes the underlying handle for transactional service flows.
func (r *HarvestRepository) DB() *gorm.DB {
	return r.db
}

// FindByID 根据ID查找收获记录（含行项）
func (r *HarvestRepository) FindByID(ctx context.Context, id string) (*entity.HarvestRecord, error) {
	var record entity.HarvestRecord
	err := r.db.WithContext(ctx).
		Preload("Variety").
		Preload("Lines").
		Preload("Lines.Unit").
		Where("id = ?", id).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// List 分页获取收获记录列表
func (r *HarvestRepository) List(ctx context.Context, page, pageSize int, filters map[string]interface{}) ([]entity.HarvestRecord, int64, error) {
	var records []entity.HarvestRecord
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.HarvestRecord{})
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
		Preload("Lines").
		Order("harvest_date DESC, created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error
	return records, total, err
}
