package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Variety 品种: a cultivar with its grow profile. The duration fields drive
// backward scheduling; they are read-only to the planning and lifecycle
// engines.
type Variety struct {
	ID     string `json:"id" gorm:"primaryKey;size:32"`
	Code   string `json:"code" gorm:"size:32;uniqueIndex;not null"`
	Name   string `json:"name" gorm:"size:128;not null"`
	Status string `json:"status" gorm:"size:16;not null;default:active"`

	// Grow profile
	SeedSoakHours    int             `json:"seed_soak_hours" gorm:"not null;default:0"`
	GerminationDays  int             `json:"germination_days" gorm:"not null;default:0"`
	BlackoutDays     int             `json:"blackout_days" gorm:"not null;default:0"`
	LightDays        int             `json:"light_days" gorm:"not null;default:0"`
	DaysToMaturity   *int            `json:"days_to_maturity"`
	BufferPercentage decimal.Decimal `json:"buffer_percentage" gorm:"type:decimal(5,2);not null;default:0"`
	YieldGramsPerUnit decimal.Decimal `json:"yield_grams_per_unit" gorm:"type:decimal(8,2);not null"`

	Notes     string    `json:"notes" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Variety) TableName() string {
	return "varieties"
}

// TotalGrowingDays 发芽+遮光+见光 total days on the tray. A zero blackout
// count means the stage is skipped.
func (v *Variety) TotalGrowingDays() int {
	if v.DaysToMaturity != nil && *v.DaysToMaturity > 0 {
		return *v.DaysToMaturity
	}
	return v.GerminationDays + v.BlackoutDays + v.LightDays
}

// 品种状态
const (
	VarietyStatusActive   = "active"
	VarietyStatusInactive = "inactive"
)
