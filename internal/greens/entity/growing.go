package entity

import (
	"time"
)

// GrowingBatch 种植批次: a group of trays planted together that share stage
// transitions. Aggregate display fields (crop count, tray list,
// representative stage) are derived from the member units at read time and
// never stored.
type GrowingBatch struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	VarietyID string    `json:"variety_id" gorm:"size:32;not null;index"`
	PlanID    *string   `json:"plan_id" gorm:"size:32;index"`
	Notes     string    `json:"notes" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 关联
	Variety *Variety        `json:"variety,omitempty" gorm:"foreignKey:VarietyID"`
	Plan    *ProductionPlan `json:"plan,omitempty" gorm:"foreignKey:PlanID"`
	Units   []GrowingUnit   `json:"units,omitempty" gorm:"foreignKey:BatchID"`
}

func (GrowingBatch) TableName() string {
	return "growing_batches"
}

// GrowingUnit 种植托盘: one physical tray moving through the stage machine.
// Stage entry timestamps are monotonically non-decreasing in stage order;
// resetting to an earlier stage clears every later timestamp.
type GrowingUnit struct {
	ID         string  `json:"id" gorm:"primaryKey;size:32"`
	BatchID    *string `json:"batch_id" gorm:"size:32;index"`
	VarietyID  string  `json:"variety_id" gorm:"size:32;not null;index"`
	PlanID     *string `json:"plan_id" gorm:"size:32;index"`
	OrderID    *string `json:"order_id" gorm:"size:32;index"`
	TrayNumber string  `json:"tray_number" gorm:"size:32;not null;uniqueIndex"`

	CurrentStage string `json:"current_stage" gorm:"size:16;not null;default:soaking"`

	// 阶段进入时间
	SoakingAt     *time.Time `json:"soaking_at"`
	GerminationAt *time.Time `json:"germination_at"`
	BlackoutAt    *time.Time `json:"blackout_at"`
	LightAt       *time.Time `json:"light_at"`
	HarvestedAt   *time.Time `json:"harvested_at"`

	WateringSuspendedAt *time.Time `json:"watering_suspended_at"`
	ReadyFlagged        bool       `json:"ready_flagged" gorm:"not null;default:false"`
	Notes               string     `json:"notes" gorm:"type:text"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`

	// 关联
	Batch   *GrowingBatch   `json:"batch,omitempty" gorm:"foreignKey:BatchID"`
	Variety *Variety        `json:"variety,omitempty" gorm:"foreignKey:VarietyID"`
	Plan    *ProductionPlan `json:"plan,omitempty" gorm:"foreignKey:PlanID"`
	Order   *Order          `json:"order,omitempty" gorm:"foreignKey:OrderID"`
}

func (GrowingUnit) TableName() string {
	return "growing_units"
}

// CropLog 托盘操作历史: audit trail for stage changes, timestamp edits and
// partial harvests.
type CropLog struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	UnitID    string    `json:"unit_id" gorm:"size:32;not null;index"`
	Action    string    `json:"action" gorm:"size:32;not null"`
	UserID    string    `json:"user_id" gorm:"size:32"`
	Detail    JSONB     `json:"detail" gorm:"type:jsonb"`
	CreatedAt time.Time `json:"created_at"`

	// 关联
	Unit *GrowingUnit `json:"unit,omitempty" gorm:"foreignKey:UnitID"`
}

func (CropLog) TableName() string {
	return "crop_logs"
}

// 生长阶段（按顺序）
const (
	StageSoaking     = "soaking"
	StageGermination = "germination"
	StageBlackout    = "blackout"
	StageLight       = "light"
	StageHarvested   = "harvested"
	StageCancelled   = "cancelled"
)

// stageRank orders the growing stages; terminal cancelled sits outside the
// progression.
var stageRank = map[string]int{
	StageSoaking:     0,
	StageGermination: 1,
	StageBlackout:    2,
	StageLight:       3,
	StageHarvested:   4,
}

// StageRank returns the position of a stage in the progression, or -1 for
// stages outside it (cancelled, unknown).
func StageRank(stage string) int {
	if r, ok := stageRank[stage]; ok {
		return r
	}
	return -1
}

// Terminal reports whether the unit can no longer advance.
func (u *GrowingUnit) Terminal() bool {
	return u.CurrentStage == StageHarvested || u.CurrentStage == StageCancelled
}

// StageEnteredAt returns the stored entry timestamp for a stage, nil when
// the unit never entered it.
func (u *GrowingUnit) StageEnteredAt(stage string) *time.Time {
	switch stage {
	case StageSoaking:
		return u.SoakingAt
	case StageGermination:
		return u.GerminationAt
	case StageBlackout:
		return u.BlackoutAt
	case StageLight:
		return u.LightAt
	case StageHarvested:
		return u.HarvestedAt
	}
	return nil
}

// SetStageEnteredAt stores a stage entry timestamp.
func (u *GrowingUnit) SetStageEnteredAt(stage string, t *time.Time) {
	switch stage {
	case StageSoaking:
		u.SoakingAt = t
	case StageGermination:
		u.GerminationAt = t
	case StageBlackout:
		u.BlackoutAt = t
	case StageLight:
		u.LightAt = t
	case StageHarvested:
		u.HarvestedAt = t
	}
}

// EarliestStageEntry returns the first recorded stage and its timestamp,
// scanning in stage order.
func (u *GrowingUnit) EarliestStageEntry() (string, *time.Time) {
	for _, s := range []string{StageSoaking, StageGermination, StageBlackout, StageLight, StageHarvested} {
		if ts := u.StageEnteredAt(s); ts != nil {
			return s, ts
		}
	}
	return "", nil
}

// 托盘历史动作
const (
	CropLogPlanted        = "planted"
	CropLogStageAdvanced  = "stage_advanced"
	CropLogStageTimeEdit  = "stage_time_edited"
	CropLogPartialHarvest = "partial_harvest"
	CropLogHarvested      = "harvested"
	CropLogCancelled      = "cancelled"
	CropLogWateringToggle = "watering_toggled"
)
