package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bitfantasy/sprout/internal/greens/entity"
	"github.com/bitfantasy/sprout/internal/greens/events"
	"github.com/bitfantasy/sprout/internal/greens/repository"
	"github.com/bitfantasy/sprout/internal/greens/testutil"
)

func setupServices(t *testing.T) (*gorm.DB, *Services) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	bus := events.NewBus(nil, zap.NewNop())
	svcs := NewServices(db, repos, bus, zap.NewNop(), 1, 0)
	return db, svcs
}

func futureDelivery(days int) time.Time {
	return dateOnly(time.Now()).AddDate(0, 0, days)
}

func TestGeneratePlansForOrder(t *testing.T) {
	db, svcs := setupServices(t)
	ctx := context.Background()

	testutil.SeedVariety(t, db, "v1", "SUNFLOWER")
	testutil.SeedOrder(t, db, "ord1", "v1", futureDelivery(30), 1000)

	result, err := svcs.Plan.GeneratePlansForOrder(ctx, "ord1", "tester")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("Expected success, issues: %+v", result.Issues)
	}
	if len(result.Plans) != 1 {
		t.Fatalf("Expected 1 plan, got %d", len(result.Plans))
	}

	plan := result.Plans[0]
	if plan.Status != entity.PlanStatusDraft {
		t.Errorf("Expected draft plan, got %s", plan.Status)
	}
	// 1000g * 1.10 / 250 = 4.4 -> 5 trays
	if plan.TraysNeeded != 5 {
		t.Errorf("Expected 5 trays, got %d", plan.TraysNeeded)
	}
	// harvest = delivery - 1d, plant-by = harvest - 10d
	wantHarvest := futureDelivery(29)
	if !dateOnly(plan.HarvestDate).Equal(wantHarvest) {
		t.Errorf("Expected harvest %v, got %v", wantHarvest, plan.HarvestDate)
	}
	if !dateOnly(plan.PlantByDate).Equal(wantHarvest.AddDate(0, 0, -10)) {
		t.Errorf("Unexpected plant-by %v", plan.PlantByDate)
	}
	if plan.SeedSoakDate == nil {
		t.Error("Expected a seed soak date")
	}

	var order entity.Order
	db.First(&order, "id = ?", "ord1")
	if order.Status != entity.OrderStatusPlanned {
		t.Errorf("Expected order planned, got %s", order.Status)
	}
}

func TestGeneratePlansAggregatesAcrossOrders(t *testing.T) {
	db, svcs := setupServices(t)
	ctx := context.Background()

	testutil.SeedVariety(t, db, "v1", "SUNFLOWER")
	testutil.SeedOrder(t, db, "ord1", "v1", futureDelivery(30), 1000)
	testutil.SeedOrder(t, db, "ord2", "v1", futureDelivery(30), 500)

	r1, err := svcs.Plan.GeneratePlansForOrder(ctx, "ord1", "tester")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	r2, err := svcs.Plan.GeneratePlansForOrder(ctx, "ord2", "tester")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if r1.Plans[0].ID != r2.Plans[0].ID {
		t.Fatal("Same variety and harvest date must share one plan")
	}

	plan, err := svcs.Plan.Get(ctx, r1.Plans[0].ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !plan.GramsNeeded.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("Expected 1500g total, got %s", plan.GramsNeeded)
	}
	// 5 trays (ord1) + 3 trays (500*1.1/250=2.2 -> 3)
	if plan.TraysNeeded != 8 {
		t.Errorf("Expected 8 trays total, got %d", plan.TraysNeeded)
	}

	contributors, _ := svcs.Plan.planRepo.ListActiveContributors(ctx, plan.ID)
	if len(contributors) != 2 {
		t.Errorf("Expected 2 active contributors, got %d", len(contributors))
	}

	history, ok := plan.CalculationDetails["history"].([]interface{})
	if !ok || len(history) < 2 {
		t.Errorf("Expected aggregation history, got %v", plan.CalculationDetails["history"])
	}
}

func TestUpdatePlansRecomputesFromContributors(t *testing.T) {
	db, svcs := setupServices(t)
	ctx := context.Background()

	testutil.SeedVariety(t, db, "v1", "SUNFLOWER")
	testutil.SeedOrder(t, db, "ord1", "v1", futureDelivery(30), 1000)
	testutil.SeedOrder(t, db, "ord2", "v1", futureDelivery(30), 500)

	if _, err := svcs.Plan.GeneratePlansForOrder(ctx, "ord1", "tester"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	r2, err := svcs.Plan.GeneratePlansForOrder(ctx, "ord2", "tester")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	planID := r2.Plans[0].ID

	// ord1 doubles its demand; replanning twice must not drift totals
	db.Model(&entity.OrderItem{}).Where("id = ?", "ord1-item1").
		Update("grams_required", 2000)
	for i := 0; i < 2; i++ {
		if _, err := svcs.Plan.UpdatePlansForOrder(ctx, "ord1", "tester"); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	plan, err := svcs.Plan.Get(ctx, planID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !plan.GramsNeeded.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("Expected 2500g after edit, got %s", plan.GramsNeeded)
	}
	// 9 trays (2000*1.1/250=8.8) + 3 trays
	if plan.TraysNeeded != 12 {
		t.Errorf("Expected 12 trays after edit, got %d", plan.TraysNeeded)
	}
}

func TestCancelOrderRemovesContribution(t *testing.T) {
	db, svcs := setupServices(t)
	ctx := context.Background()

	testutil.SeedVariety(t, db, "v1", "SUNFLOWER")
	testutil.SeedOrder(t, db, "ord1", "v1", futureDelivery(30), 1000)
	testutil.SeedOrder(t, db, "ord2", "v1", futureDelivery(30), 500)

	r1, _ := svcs.Plan.GeneratePlansForOrder(ctx, "ord1", "tester")
	svcs.Plan.GeneratePlansForOrder(ctx, "ord2", "tester")
	planID := r1.Plans[0].ID

	if err := svcs.Order.Cancel(ctx, "ord2", "tester", "customer backed out"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	plan, _ := svcs.Plan.Get(ctx, planID)
	if plan.Status != entity.PlanStatusDraft {
		t.Errorf("Plan with a remaining contributor must stay live, got %s", plan.Status)
	}
	if !plan.GramsNeeded.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected 1000g after removal, got %s", plan.GramsNeeded)
	}

	// last contributor leaves: plan cancelled with totals frozen
	if err := svcs.Order.Cancel(ctx, "ord1", "tester", "dup"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	plan, _ = svcs.Plan.Get(ctx, planID)
	if plan.Status != entity.PlanStatusCancelled {
		t.Errorf("Expected cancelled plan, got %s", plan.Status)
	}
	if !plan.GramsNeeded.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Cancelled plan must freeze its last totals, got %s", plan.GramsNeeded)
	}
}

func TestGeneratePlansInfeasibleDelivery(t *testing.T) {
	db, svcs := setupServices(t)
	ctx := context.Background()

	testutil.SeedVariety(t, db, "v1", "SUNFLOWER")
	// 10 growing days, delivered in 5: planting date is ~6 days gone
	testutil.SeedOrder(t, db, "ord1", "v1", futureDelivery(5), 1000)

	result, err := svcs.Plan.GeneratePlansForOrder(ctx, "ord1", "tester")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Success {
		t.Error("Expected failure for infeasible delivery")
	}
	if len(result.Plans) != 0 {
		t.Errorf("No plan should be persisted, got %d", len(result.Plans))
	}
	if len(result.Issues) != 1 || result.Issues[0].Issue != IssuePlantingDateInPast {
		t.Fatalf("Expected planting_date_in_past issue, got %+v", result.Issues)
	}
	if result.Issues[0].DaysOverdue != 6 {
		t.Errorf("Expected 6 days overdue, got %d", result.Issues[0].DaysOverdue)
	}
}

func TestUpdatePlansFlagsManualReviewWhenGrowing(t *testing.T) {
	db, svcs := setupServices(t)
	ctx := context.Background()

	testutil.SeedVariety(t, db, "v1", "SUNFLOWER")
	testutil.SeedOrder(t, db, "ord1", "v1", futureDelivery(30), 1000)

	r, _ := svcs.Plan.GeneratePlansForOrder(ctx, "ord1", "tester")
	planID := r.Plans[0].ID

	if _, err := svcs.Plan.ApprovePlan(ctx, planID, "approver"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := svcs.Growing.StartPlan(ctx, planID, "grower"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	db.Model(&entity.OrderItem{}).Where("id = ?", "ord1-item1").
		Update("grams_required", 2000)
	result, err := svcs.Plan.UpdatePlansForOrder(ctx, "ord1", "tester")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	found := false
	for _, issue := range result.Issues {
		if issue.Issue == IssueManualReviewFlagged {
			found = true
		}
	}
	if !found {
		t.Fatalf("Expected manual review issue, got %+v", result.Issues)
	}

	// the growing plan is untouched
	plan, _ := svcs.Plan.Get(ctx, planID)
	if !plan.GramsNeeded.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Growing plan must keep its totals, got %s", plan.GramsNeeded)
	}
	if plan.CalculationDetails["manual_review"] != true {
		t.Error("Expected manual_review flag in calculation details")
	}
}

func TestApprovePlanOnlyFromDraft(t *testing.T) {
	db, svcs := setupServices(t)
	ctx := context.Background()

	testutil.SeedVariety(t, db, "v1", "SUNFLOWER")
	testutil.SeedOrder(t, db, "ord1", "v1", futureDelivery(30), 1000)

	r, _ := svcs.Plan.GeneratePlansForOrder(ctx, "ord1", "tester")
	planID := r.Plans[0].ID

	plan, err := svcs.Plan.ApprovePlan(ctx, planID, "approver")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if plan.Status != entity.PlanStatusActive || plan.ApprovedBy == nil {
		t.Errorf("Expected active approved plan, got %s", plan.Status)
	}

	if _, err := svcs.Plan.ApprovePlan(ctx, planID, "approver"); err == nil {
		t.Error("Approving an active plan must fail")
	}
}
