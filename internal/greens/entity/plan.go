package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// JSONB JSONB类型
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan JSONB: %v", value)
	}
	return json.Unmarshal(bytes, j)
}

// JSONBArray JSONB数组类型
type JSONBArray []interface{}

func (j JSONBArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONBArray) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan JSONBArray: %v", value)
	}
	return json.Unmarshal(bytes, j)
}

// ProductionPlan 生产计划: aggregated demand for one variety on one harvest
// date. GramsNeeded/TraysNeeded always equal the sum over active
// contributors; a cancelled plan freezes its last totals and drops out of
// all matching queries. The (variety, harvest date, live status) pair is
// guarded by a partial unique index created in the migration list.
type ProductionPlan struct {
	ID           string          `json:"id" gorm:"primaryKey;size:32"`
	VarietyID    string          `json:"variety_id" gorm:"size:32;not null;index"`
	HarvestDate  time.Time       `json:"harvest_date" gorm:"type:date;not null"`
	TraysNeeded  int             `json:"trays_needed" gorm:"not null"`
	GramsNeeded  decimal.Decimal `json:"grams_needed" gorm:"type:decimal(12,2);not null"`
	PlantByDate  time.Time       `json:"plant_by_date" gorm:"type:date;not null"`
	SeedSoakDate *time.Time      `json:"seed_soak_date" gorm:"type:date"`
	Status       string          `json:"status" gorm:"size:16;not null;default:draft"`

	// CalculationDetails carries the aggregation history, contributor
	// removals and manual-review flags as an append-only audit blob.
	CalculationDetails JSONB `json:"calculation_details" gorm:"type:jsonb"`

	// OrderID is the first (primary) contributing order.
	OrderID string `json:"order_id" gorm:"size:32;not null"`

	ApprovedBy     *string    `json:"approved_by" gorm:"size:32"`
	ApprovedAt     *time.Time `json:"approved_at"`
	CancelReason   string     `json:"cancel_reason" gorm:"type:text"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// 关联
	Variety      *Variety          `json:"variety,omitempty" gorm:"foreignKey:VarietyID"`
	Order        *Order            `json:"order,omitempty" gorm:"foreignKey:OrderID"`
	Contributors []PlanContributor `json:"contributors,omitempty" gorm:"foreignKey:PlanID"`
}

func (ProductionPlan) TableName() string {
	return "production_plans"
}

// PlanContributor 计划贡献订单: one order item's share folded into a shared
// plan. Removed contributors stay as rows for the audit trail but are
// excluded from total recomputation.
type PlanContributor struct {
	ID            string          `json:"id" gorm:"primaryKey;size:32"`
	PlanID        string          `json:"plan_id" gorm:"size:32;not null;index"`
	OrderID       string          `json:"order_id" gorm:"size:32;not null;index"`
	OrderItemID   string          `json:"order_item_id" gorm:"size:32;not null"`
	GramsRequired decimal.Decimal `json:"grams_required" gorm:"type:decimal(10,2);not null"`
	TraysRequired int             `json:"trays_required" gorm:"not null"`
	Status        string          `json:"status" gorm:"size:16;not null;default:active"`
	RemovedAt     *time.Time      `json:"removed_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// 关联
	Plan  *ProductionPlan `json:"plan,omitempty" gorm:"foreignKey:PlanID"`
	Order *Order          `json:"order,omitempty" gorm:"foreignKey:OrderID"`
}

func (PlanContributor) TableName() string {
	return "plan_contributors"
}

// 生产计划状态
const (
	PlanStatusDraft     = "draft"
	PlanStatusActive    = "active"
	PlanStatusCompleted = "completed"
	PlanStatusCancelled = "cancelled"
)

// 贡献状态
const (
	ContributorStatusActive  = "active"
	ContributorStatusRemoved = "removed"
)

// Live reports whether the plan still participates in aggregation matching.
func (p *ProductionPlan) Live() bool {
	return p.Status == PlanStatusDraft || p.Status == PlanStatusActive
}
