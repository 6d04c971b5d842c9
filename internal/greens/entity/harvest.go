package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// HarvestRecord 收获记录: one harvest submission for a variety on a date.
// TotalWeightGrams, TrayCount and AverageWeightPerTray are always recomputed
// from the lines; they are never edited independently.
type HarvestRecord struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	VarietyID   string    `json:"variety_id" gorm:"size:32;not null;index"`
	HarvestDate time.Time `json:"harvest_date" gorm:"type:date;not null"`
	UserID      string    `json:"user_id" gorm:"size:32;not null"`
	Notes       string    `json:"notes" gorm:"type:text"`

	TotalWeightGrams     decimal.Decimal `json:"total_weight_grams" gorm:"type:decimal(12,2);not null"`
	TrayCount            int             `json:"tray_count" gorm:"not null"`
	AverageWeightPerTray decimal.Decimal `json:"average_weight_per_tray" gorm:"type:decimal(12,2);not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 关联
	Variety *Variety      `json:"variety,omitempty" gorm:"foreignKey:VarietyID"`
	Lines   []HarvestLine `json:"lines,omitempty" gorm:"foreignKey:HarvestID"`
}

func (HarvestRecord) TableName() string {
	return "harvest_records"
}

// HarvestLine 收获行项: one harvested tray. PercentageHarvested is 0–100;
// zero weight and zero percentage imply each other (both-or-neither).
type HarvestLine struct {
	ID                   string          `json:"id" gorm:"primaryKey;size:32"`
	HarvestID            string          `json:"harvest_id" gorm:"size:32;not null;index"`
	UnitID               string          `json:"unit_id" gorm:"size:32;not null;index"`
	HarvestedWeightGrams decimal.Decimal `json:"harvested_weight_grams" gorm:"type:decimal(10,2);not null"`
	PercentageHarvested  decimal.Decimal `json:"percentage_harvested" gorm:"type:decimal(5,2);not null"`
	Notes                string          `json:"notes" gorm:"type:text"`
	CreatedAt            time.Time       `json:"created_at"`

	// 关联
	Harvest *HarvestRecord `json:"harvest,omitempty" gorm:"foreignKey:HarvestID"`
	Unit    *GrowingUnit   `json:"unit,omitempty" gorm:"foreignKey:UnitID"`
}

func (HarvestLine) TableName() string {
	return "harvest_lines"
}
