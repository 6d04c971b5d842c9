package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bitfantasy/sprout/internal/greens/entity"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testVariety() *entity.Variety {
	return &entity.Variety{
		ID:                "v1",
		Code:              "SUNFLOWER",
		Status:            entity.VarietyStatusActive,
		SeedSoakHours:     8,
		GerminationDays:   3,
		BlackoutDays:      2,
		LightDays:         5,
		BufferPercentage:  decimal.NewFromInt(10),
		YieldGramsPerUnit: decimal.NewFromInt(250),
	}
}

func TestHarvestDateFor(t *testing.T) {
	delivery := date(2026, 3, 20)

	got := HarvestDateFor(delivery, nil, 1)
	if !got.Equal(date(2026, 3, 19)) {
		t.Errorf("Expected harvest 2026-03-19, got %v", got)
	}

	override := date(2026, 3, 15)
	got = HarvestDateFor(delivery, &override, 1)
	if !got.Equal(override) {
		t.Errorf("Item-level override should win, got %v", got)
	}
}

func TestComputeScheduleBackward(t *testing.T) {
	v := testVariety()
	harvest := date(2026, 3, 19)

	sched := ComputeSchedule(v, harvest)

	// plant_by = harvest - (3 + 2 + 5)
	if !sched.PlantByDate.Equal(date(2026, 3, 9)) {
		t.Errorf("Expected plant-by 2026-03-09, got %v", sched.PlantByDate)
	}
	if sched.TotalGrowingDays != 10 {
		t.Errorf("Expected 10 growing days, got %d", sched.TotalGrowingDays)
	}
	// 8h soak rounds up to 1 day
	if sched.SeedSoakDate == nil || !sched.SeedSoakDate.Equal(date(2026, 3, 8)) {
		t.Errorf("Expected soak date 2026-03-08, got %v", sched.SeedSoakDate)
	}

	// plant_by + total days always lands back on the harvest date
	if !sched.PlantByDate.AddDate(0, 0, sched.TotalGrowingDays).Equal(sched.HarvestDate) {
		t.Error("plant-by plus growing days must equal harvest date")
	}
}

func TestComputeScheduleNoSoak(t *testing.T) {
	v := testVariety()
	v.SeedSoakHours = 0

	sched := ComputeSchedule(v, date(2026, 3, 19))
	if sched.SeedSoakDate != nil {
		t.Errorf("No soak expected, got %v", sched.SeedSoakDate)
	}
}

func TestComputeScheduleMaturityOverride(t *testing.T) {
	v := testVariety()
	maturity := 14
	v.DaysToMaturity = &maturity

	sched := ComputeSchedule(v, date(2026, 3, 19))
	if !sched.PlantByDate.Equal(date(2026, 3, 5)) {
		t.Errorf("days_to_maturity override should drive plant-by, got %v", sched.PlantByDate)
	}
}

func TestComputeScheduleMultiDaySoak(t *testing.T) {
	v := testVariety()
	v.SeedSoakHours = 30 // rounds up to 2 days

	sched := ComputeSchedule(v, date(2026, 3, 19))
	if sched.SeedSoakDate == nil || !sched.SeedSoakDate.Equal(date(2026, 3, 7)) {
		t.Errorf("Expected soak date 2026-03-07, got %v", sched.SeedSoakDate)
	}
}

func TestTraysFor(t *testing.T) {
	v := testVariety()

	// 1000g * 1.10 / 250 = 4.4 -> 5
	trays, err := TraysFor(decimal.NewFromInt(1000), v)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if trays != 5 {
		t.Errorf("Expected 5 trays, got %d", trays)
	}

	// exact fit: 500g * 1.10 / 275 = 2.0 -> 2
	v2 := testVariety()
	v2.YieldGramsPerUnit = decimal.NewFromInt(275)
	trays, err = TraysFor(decimal.NewFromInt(500), v2)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if trays != 2 {
		t.Errorf("Exact fit should not round up, got %d", trays)
	}

	// tiny demand still needs one tray
	trays, err = TraysFor(decimal.NewFromInt(1), v)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if trays != 1 {
		t.Errorf("Expected at least 1 tray, got %d", trays)
	}

	// zero demand, zero trays
	trays, err = TraysFor(decimal.Zero, v)
	if err != nil || trays != 0 {
		t.Errorf("Expected 0 trays for zero demand, got %d (%v)", trays, err)
	}

	// no yield configured is a hard error
	v3 := testVariety()
	v3.YieldGramsPerUnit = decimal.Zero
	if _, err = TraysFor(decimal.NewFromInt(100), v3); err == nil {
		t.Error("Expected error for zero yield")
	}
}

func TestCheckFeasibility(t *testing.T) {
	v := testVariety()
	today := date(2026, 3, 12)

	// plant-by 2026-03-09 is 3 days gone
	sched := ComputeSchedule(v, date(2026, 3, 19))
	issue := CheckFeasibility(v, sched, today, 0)
	if issue == nil {
		t.Fatal("Expected a blocking issue")
	}
	if issue.Issue != IssuePlantingDateInPast {
		t.Errorf("Expected planting_date_in_past, got %s", issue.Issue)
	}
	if issue.DaysOverdue != 3 {
		t.Errorf("Expected 3 days overdue, got %d", issue.DaysOverdue)
	}
	if issue.Warning {
		t.Error("Past planting date must block, not warn")
	}

	// enough lead: no issue
	sched = ComputeSchedule(v, date(2026, 3, 30))
	if issue := CheckFeasibility(v, sched, today, 0); issue != nil {
		t.Errorf("Expected no issue, got %+v", issue)
	}

	// short lead with a configured minimum is a warning
	sched = ComputeSchedule(v, date(2026, 3, 24)) // plant-by 03-14, 2 days lead
	issue = CheckFeasibility(v, sched, today, 5)
	if issue == nil || !issue.Warning || issue.Issue != IssueInsufficientLead {
		t.Errorf("Expected insufficient_lead warning, got %+v", issue)
	}
}

func TestCheckFeasibilityExactFit(t *testing.T) {
	// 19-day crop, delivery exactly 20 days out: plant-by lands on today and
	// must pass without any issue.
	v := testVariety()
	v.SeedSoakHours = 0
	v.GerminationDays = 5
	v.BlackoutDays = 0
	v.LightDays = 14

	today := date(2026, 6, 1)
	harvest := HarvestDateFor(date(2026, 6, 21), nil, 1)
	sched := ComputeSchedule(v, harvest)

	if !sched.PlantByDate.Equal(today) {
		t.Fatalf("Expected plant-by on 2026-06-01, got %v", sched.PlantByDate)
	}
	if issue := CheckFeasibility(v, sched, today, 0); issue != nil {
		t.Errorf("Plant-by today must be feasible, got %+v", issue)
	}
}

func TestCheckFeasibilityLongSeasonScenario(t *testing.T) {
	// A 20-day crop ordered for delivery 5 days out is roughly 16 days late.
	v := testVariety()
	v.GerminationDays = 5
	v.BlackoutDays = 5
	v.LightDays = 10

	today := date(2026, 6, 1)
	harvest := HarvestDateFor(date(2026, 6, 6), nil, 1)
	sched := ComputeSchedule(v, harvest)

	issue := CheckFeasibility(v, sched, today, 0)
	if issue == nil {
		t.Fatal("Expected a blocking issue")
	}
	if issue.DaysOverdue != 16 {
		t.Errorf("Expected 16 days overdue, got %d", issue.DaysOverdue)
	}
}
