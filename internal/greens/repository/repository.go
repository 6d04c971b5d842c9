package repository

import (
	"errors"

	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound = errors.New("record not found")
)

// Repositories 仓库集合
type Repositories struct {
	Variety *VarietyRepository
	Order   *OrderRepository
	Plan    *PlanRepository
	Growing *GrowingRepository
	Harvest *HarvestRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Variety: NewVarietyRepository(db),
		Order:   NewOrderRepository(db),
		Plan:    NewPlanRepository(db),
		Growing: NewGrowingRepository(db),
		Harvest: NewHarvestRepository(db),
	}
}
