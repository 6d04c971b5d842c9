package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/sprout/internal/greens/entity"
	"gorm.io/gorm"
)

// VarietyRepository 品种仓储
type VarietyRepository struct {
	db *gorm.DB
}

// NewVarietyRepository 创建品种仓储
func NewVarietyRepository(db *gorm.DB) *VarietyRepository {
	return &VarietyRepository{db: db}
}

// FindByID 根据ID查找品种
func (r *VarietyRepository) FindByID(ctx context.Context, id string) (*entity.Variety, error) {
	var v entity.Variety
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// FindByCode 根据编码查找品种
func (r *VarietyRepository) FindByCode(ctx context.Context, code string) (*entity.Variety, error) {
	var v entity.Variety
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// ListActive 获取所有活跃品种
func (r *VarietyRepository) ListActive(ctx context.Context) ([]entity.Variety, error) {
	var varieties []entity.Variety
	err := r.db.WithContext(ctx).
		Where("status = ?", entity.VarietyStatusActive).
		Order("code ASC").
		Find(&varieties).Error
	return varieties, err
}

// List 分页获取品种列表
func (r *VarietyRepository) List(ctx context.Context, page, pageSize int) ([]entity.Variety, int64, error) {
	var varieties []entity.Variety
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Variety{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("code ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&varieties).Error
	return varieties, total, err
}

// Create 创建品种
func (r *VarietyRepository) Create(ctx context.Context, v *entity.Variety) error {
	return r.db.WithContext(ctx).Create(v).Error
}

// Update 更新品种
func (r *VarietyRepository) Update(ctx context.Context, v *entity.Variety) error {
	return r.db.WithContext(ctx).Save(v).Error
}
