package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bitfantasy/sprout/internal/greens/entity"
)

// 排产问题类型
const (
	IssuePlantingDateInPast  = "planting_date_in_past"
	IssueInsufficientLead    = "insufficient_lead_time"
	IssueProfileNotFound     = "profile_not_found"
	IssueProfileIncomplete   = "profile_incomplete"
	IssueManualReviewFlagged = "manual_review_required"
)

// PlanSchedule 倒排排期结果: all dates derived backward from the harvest date.
type PlanSchedule struct {
	HarvestDate      time.Time  `json:"harvest_date"`
	PlantByDate      time.Time  `json:"plant_by_date"`
	SeedSoakDate     *time.Time `json:"seed_soak_date,omitempty"`
	TotalGrowingDays int        `json:"total_growing_days"`
}

// PlanIssue 排产问题: one variety that could not be planned, or that was
// planned with a warning. Blocking issues suppress the plan for that variety
// only; other varieties in the same order proceed.
type PlanIssue struct {
	VarietyID   string     `json:"variety_id"`
	VarietyCode string     `json:"variety_code,omitempty"`
	Issue       string     `json:"issue"`
	PlantDate   *time.Time `json:"plant_date,omitempty"`
	DaysOverdue int        `json:"days_overdue,omitempty"`
	Warning     bool       `json:"warning,omitempty"`
}

// dateOnly truncates a timestamp to midnight UTC. All planning dates are
// whole days.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// HarvestDateFor 计算收获日期: the item-level override wins; otherwise the
// harvest date is the delivery date minus the configured offset.
func HarvestDateFor(deliveryDate time.Time, override *time.Time, offsetDays int) time.Time {
	if override != nil {
		return dateOnly(*override)
	}
	return dateOnly(deliveryDate).AddDate(0, 0, -offsetDays)
}

// ComputeSchedule 倒排计算: plant-by date is the harvest date minus the
// variety's total growing days; the soak date precedes planting by the soak
// duration rounded up to whole days.
func ComputeSchedule(v *entity.Variety, harvestDate time.Time) PlanSchedule {
	harvestDate = dateOnly(harvestDate)
	total := v.TotalGrowingDays()
	plantBy := harvestDate.AddDate(0, 0, -total)

	sched := PlanSchedule{
		HarvestDate:      harvestDate,
		PlantByDate:      plantBy,
		TotalGrowingDays: total,
	}
	if v.SeedSoakHours > 0 {
		soakDays := (v.SeedSoakHours + 23) / 24
		soak := plantBy.AddDate(0, 0, -soakDays)
		sched.SeedSoakDate = &soak
	}
	return sched
}

// TraysFor 计算托盘数: grams inflated by the buffer percentage, divided by
// per-tray yield, rounded up. Any positive demand needs at least one tray.
func TraysFor(grams decimal.Decimal, v *entity.Variety) (int, error) {
	if v.YieldGramsPerUnit.LessThanOrEqual(decimal.Zero) {
		return 0, NewBusinessError("variety %s has no per-tray yield configured", v.Code)
	}
	if grams.LessThanOrEqual(decimal.Zero) {
		return 0, nil
	}
	factor := decimal.NewFromInt(1).Add(v.BufferPercentage.Div(decimal.NewFromInt(100)))
	trays := grams.Mul(factor).Div(v.YieldGramsPerUnit).Ceil().IntPart()
	if trays < 1 {
		trays = 1
	}
	return int(trays), nil
}

// CheckFeasibility 检查可行性: a plant-by date already in the past is a
// blocking issue; a lead shorter than the configured minimum is a warning.
func CheckFeasibility(v *entity.Variety, sched PlanSchedule, today time.Time, minLeadDays int) *PlanIssue {
	today = dateOnly(today)
	plantBy := sched.PlantByDate
	if plantBy.Before(today) {
		overdue := int(today.Sub(plantBy).Hours() / 24)
		return &PlanIssue{
			VarietyID:   v.ID,
			VarietyCode: v.Code,
			Issue:       IssuePlantingDateInPast,
			PlantDate:   &plantBy,
			DaysOverdue: overdue,
		}
	}
	if minLeadDays > 0 {
		lead := int(plantBy.Sub(today).Hours() / 24)
		if lead < minLeadDays {
			return &PlanIssue{
				VarietyID:   v.ID,
				VarietyCode: v.Code,
				Issue:       IssueInsufficientLead,
				PlantDate:   &plantBy,
				Warning:     true,
			}
		}
	}
	return nil
}
