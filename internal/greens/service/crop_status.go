package service

import (
	"time"

	"github.com/bitfantasy/sprout/internal/greens/entity"
)

// CropStatus 托盘实时状态: derived timing fields computed from stage entry
// timestamps and the variety profile at read time, never persisted.
type CropStatus struct {
	UnitID               string     `json:"unit_id"`
	TrayNumber           string     `json:"tray_number"`
	CurrentStage         string     `json:"current_stage"`
	StageAgeHours        float64    `json:"stage_age_hours"`
	TotalAgeHours        float64    `json:"total_age_hours"`
	TimeToNextStageHours float64    `json:"time_to_next_stage_hours"`
	ExpectedHarvestAt    *time.Time `json:"expected_harvest_at,omitempty"`
	Ready                bool       `json:"ready"`
	WateringSuspended    bool       `json:"watering_suspended"`
}

// StageDuration 阶段标准时长: expected time the unit spends in a stage,
// from the variety profile.
func StageDuration(v *entity.Variety, stage string) time.Duration {
	day := 24 * time.Hour
	switch stage {
	case entity.StageSoaking:
		return time.Duration(v.SeedSoakHours) * time.Hour
	case entity.StageGermination:
		return time.Duration(v.GerminationDays) * day
	case entity.StageBlackout:
		return time.Duration(v.BlackoutDays) * day
	case entity.StageLight:
		return time.Duration(v.LightDays) * day
	}
	return 0
}

// RemainingFromStage 当前阶段起到收获的剩余标准时长
func RemainingFromStage(v *entity.Variety, stage string) time.Duration {
	var total time.Duration
	started := false
	for _, s := range []string{entity.StageSoaking, entity.StageGermination, entity.StageBlackout, entity.StageLight} {
		if s == stage {
			started = true
		}
		if started {
			total += StageDuration(v, s)
		}
	}
	return total
}

// ComputeCropStatus 派生托盘状态: stage age comes from the current stage's
// entry timestamp, total age from the earliest recorded entry, expected
// harvest from the stage entry plus the remaining profile durations. A unit
// in light whose remaining time has elapsed, or one manually flagged, reads
// as ready.
func ComputeCropStatus(u *entity.GrowingUnit, v *entity.Variety, now time.Time) CropStatus {
	st := CropStatus{
		UnitID:            u.ID,
		TrayNumber:        u.TrayNumber,
		CurrentStage:      u.CurrentStage,
		WateringSuspended: u.WateringSuspendedAt != nil,
	}

	if _, earliest := u.EarliestStageEntry(); earliest != nil {
		st.TotalAgeHours = now.Sub(*earliest).Hours()
	}

	entered := u.StageEnteredAt(u.CurrentStage)
	if entered != nil {
		st.StageAgeHours = now.Sub(*entered).Hours()
	}

	if u.CurrentStage == entity.StageHarvested {
		st.Ready = true
		st.ExpectedHarvestAt = u.HarvestedAt
		return st
	}
	if u.CurrentStage == entity.StageCancelled {
		return st
	}

	elapsed := false
	if entered != nil {
		stageDur := StageDuration(v, u.CurrentStage)
		remaining := stageDur.Hours() - st.StageAgeHours
		elapsed = remaining <= 0
		// 对外上报的剩余时间下限为 0，过期不计负值
		if remaining < 0 {
			remaining = 0
		}
		st.TimeToNextStageHours = remaining
		expected := entered.Add(RemainingFromStage(v, u.CurrentStage))
		st.ExpectedHarvestAt = &expected
	}

	st.Ready = u.ReadyFlagged ||
		(u.CurrentStage == entity.StageLight && elapsed)
	return st
}

// NextStage 下一个阶段: blackout is skipped when the variety profile has no
// blackout period. Returns empty when the unit cannot advance.
func NextStage(u *entity.GrowingUnit, v *entity.Variety) string {
	switch u.CurrentStage {
	case entity.StageSoaking:
		return entity.StageGermination
	case entity.StageGermination:
		if v.BlackoutDays > 0 {
			return entity.StageBlackout
		}
		return entity.StageLight
	case entity.StageBlackout:
		return entity.StageLight
	case entity.StageLight:
		return entity.StageHarvested
	}
	return ""
}

// InitialStage 初始阶段: soaking only when the variety actually soaks.
func InitialStage(v *entity.Variety) string {
	if v.SeedSoakHours > 0 {
		return entity.StageSoaking
	}
	return entity.StageGermination
}
