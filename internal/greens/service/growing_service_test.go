package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bitfantasy/sprout/internal/greens/entity"
	"github.com/bitfantasy/sprout/internal/greens/testutil"
)

// startPlanForOrder generates, approves and starts the order's plan.
func startPlanForOrder(t *testing.T, svcs *Services, ctx context.Context, orderID string) (*entity.GrowingBatch, string) {
	t.Helper()
	r, err := svcs.Plan.GeneratePlansForOrder(ctx, orderID, "tester")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	planID := r.Plans[0].ID
	if _, err := svcs.Plan.ApprovePlan(ctx, planID, "approver"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	batch, err := svcs.Growing.StartPlan(ctx, planID, "grower")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return batch, planID
}

func TestStartPlanCreatesTrays(t *testing.T) {
	db, svcs := setupServices(t)
	ctx := context.Background()

	testutil.SeedVariety(t, db, "v1", "SUNFLOWER")
	testutil.SeedOrder(t, db, "ord1", "v1", futureDelivery(30), 1000)

	batch, planID := startPlanForOrder(t, svcs, ctx, "ord1")

	if len(batch.Units) != 5 {
		t.Fatalf("Expected 5 trays, got %d", len(batch.Units))
	}
	for _, u := range batch.Units {
		if u.CurrentStage != entity.StageSoaking {
			t.Errorf("Soaking variety trays must start soaking, got %s", u.CurrentStage)
		}
		if u.SoakingAt == nil {
			t.Error("Initial stage entry must be stamped")
		}
		if u.TrayNumber == "" {
			t.Error("Tray number must be assigned")
		}
		if u.OrderID == nil || *u.OrderID != "ord1" {
			t.Error("Tray must trace back to its order")
		}
	}

	// double start is rejected
	if _, err := svcs.Growing.StartPlan(ctx, planID, "grower"); err == nil {
		t.Error("Starting a started plan must fail")
	}

	summary, err := svcs.Growing.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if summary.CropCount != 5 || summary.Stage != entity.StageSoaking {
		t.Errorf("Unexpected batch summary: %+v", summary)
	}
}

func TestAdvanceStageFullLifecycle(t *testing.T) {
	db, svcs := setupServices(t)
	ctx := context.Background()

	testutil.SeedVariety(t, db, "v1", "SUNFLOWER")
	testutil.SeedOrder(t, db, "ord1", "v1", futureDelivery(30), 200)

	batch, planID := startPlanForOrder(t, svcs, ctx, "ord1")
	unitID := batch.Units[0].ID

	// soaking -> germination publishes planted, order moves to growing
	change, err := svcs.Growing.AdvanceStage(ctx, unitID, "grower")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if change.To != entity.StageGermination {
		t.Errorf("Expected germination, got %s", change.To)
	}

	var order entity.Order
	db.First(&order, "id = ?", "ord1")
	if order.Status != entity.OrderStatusGrowing {
		t.Errorf("Planted event must advance order to growing, got %s", order.Status)
	}

	// germination -> blackout -> light -> harvested
	for _, want := range []string{entity.StageBlackout, entity.StageLight, entity.StageHarvested} {
		change, err = svcs.Growing.AdvanceStage(ctx, unitID, "grower")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if change.To != want {
			t.Errorf("Expected %s, got %s", want, change.To)
		}
	}

	// the order's only tray is harvested: order and plan follow
	db.First(&order, "id = ?", "ord1")
	if order.Status != entity.OrderStatusHarvested {
		t.Errorf("Expected harvested order, got %s", order.Status)
	}
	plan, _ := svcs.Plan.Get(ctx, planID)
	if plan.Status != entity.PlanStatusCompleted {
		t.Errorf("Expected completed plan, got %s", plan.Status)
	}

	// no further transitions
	if _, err := svcs.Growing.AdvanceStage(ctx, unitID, "grower"); err == nil {
		t.Error("Advancing a harvested tray must fail")
	}
}

func TestAdvanceStageRejectsMissingTimestamp(t *testing.T) {
	db, svcs := setupServices(t)
	ctx := context.Background()

	testutil.SeedVariety(t, db, "v1", "SUNFLOWER")
	unit := &entity.GrowingUnit{
		ID:           "u-broken",
		VarietyID:    "v1",
		TrayNumber:   "T26-99999",
		CurrentStage: entity.StageGermination,
		// GerminationAt deliberately missing
	}
	if err := db.Create(unit).Error; err != nil {
		t.Fatalf("Failed to seed unit: %v", err)
	}

	_, err := svcs.Growing.AdvanceStage(ctx, "u-broken", "grower")
	var terr *InvalidTransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected InvalidTransitionError, got %v", err)
	}

	var reloaded entity.GrowingUnit
	db.First(&reloaded, "id = ?", "u-broken")
	if reloaded.CurrentStage != entity.StageGermination {
		t.Error("Rejected transition must leave the unit unchanged")
	}
}

func TestAdvanceStageBulkCollectsFailures(t *testing.T) {
	db, svcs := setupServices(t)
	ctx := context.Background()

	testutil.SeedVariety(t, db, "v1", "SUNFLOWER")
	testutil.SeedOrder(t, db, "ord1", "v1", futureDelivery(30), 500)
	batch, _ := startPlanForOrder(t, svcs, ctx, "ord1")

	ids := []string{batch.Units[0].ID, "does-not-exist", batch.Units[1].ID}
	result, err := svcs.Growing.AdvanceStageBulk(ctx, ids, "grower")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(result.Changed) != 2 {
		t.Errorf("Expected 2 advanced, got %d", len(result.Changed))
	}
	if len(result.Errors) != 1 {
		t.Errorf("Expected 1 failure, got %d", len(result.Errors))
	}
}

func TestEditStageTimeShiftsDownstream(t *testing.T) {
	db, svcs := setupServices(t)
	ctx := context.Background()

	testutil.SeedVariety(t, db, "v1", "SUNFLOWER")
	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	germAt := base.Add(12 * time.Hour)
	unit := &entity.GrowingUnit{
		ID:            "u-edit",
		VarietyID:     "v1",
		TrayNumber:    "T26-88888",
		CurrentStage:  entity.StageGermination,
		SoakingAt:     &base,
		GerminationAt: &germAt,
	}
	if err := db.Create(unit).Error; err != nil {
		t.Fatalf("Failed to seed unit: %v", err)
	}

	// soak actually began a day earlier
	newSoak := base.Add(-24 * time.Hour)
	updated, err := svcs.Growing.EditStageTime(ctx, "u-edit", entity.StageSoaking, newSoak, "grower")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !updated.SoakingAt.Equal(newSoak) {
		t.Errorf("Expected soaking at %v, got %v", newSoak, updated.SoakingAt)
	}
	wantGerm := germAt.Add(-24 * time.Hour)
	if !updated.GerminationAt.Equal(wantGerm) {
		t.Errorf("Downstream germination must shift by the same delta, got %v", updated.GerminationAt)
	}

	logs, _ := svcs.Growing.ListLogs(ctx, "u-edit")
	if len(logs) != 1 || logs[0].Action != entity.CropLogStageTimeEdit {
		t.Errorf("Expected one stage_time_edited log, got %+v", logs)
	}

	// editing germination to precede soaking is rejected
	if _, err := svcs.Growing.EditStageTime(ctx, "u-edit", entity.StageGermination, newSoak.Add(-time.Hour), "grower"); err == nil {
		t.Error("Timestamp before an earlier stage must be rejected")
	}
}

func TestToggleWatering(t *testing.T) {
	db, svcs := setupServices(t)
	ctx := context.Background()

	testutil.SeedVariety(t, db, "v1", "SUNFLOWER")
	testutil.SeedOrder(t, db, "ord1", "v1", futureDelivery(30), 200)
	batch, _ := startPlanForOrder(t, svcs, ctx, "ord1")
	unitID := batch.Units[0].ID

	unit, err := svcs.Growing.ToggleWatering(ctx, unitID, "grower")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if unit.WateringSuspendedAt == nil {
		t.Error("Expected watering suspended")
	}

	unit, err = svcs.Growing.ToggleWatering(ctx, unitID, "grower")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if unit.WateringSuspendedAt != nil {
		t.Error("Expected watering resumed")
	}

	// bulk suspend across the batch
	var ids []string
	for _, u := range batch.Units {
		ids = append(ids, u.ID)
	}
	result, err := svcs.Growing.SetWateringBulk(ctx, ids, true, "grower")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(result.Changed) != len(ids) {
		t.Errorf("Expected %d suspended, got %d", len(ids), len(result.Changed))
	}
}
