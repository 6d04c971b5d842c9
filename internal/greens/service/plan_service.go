package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bitfantasy/sprout/internal/greens/entity"
	"github.com/bitfantasy/sprout/internal/greens/events"
	"github.com/bitfantasy/sprout/internal/greens/repository"
)

// errPlanRace signals a unique-index collision during concurrent plan
// creation; the loser retries once and merges into the winner.
var errPlanRace = errors.New("concurrent plan creation")

func newID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// PlanService 生产计划服务: backward scheduling and demand aggregation.
type PlanService struct {
	db          *gorm.DB
	planRepo    *repository.PlanRepository
	varietyRepo *repository.VarietyRepository
	orderRepo   *repository.OrderRepository
	growingRepo *repository.GrowingRepository
	bus         *events.Bus
	logger      *zap.Logger

	harvestOffsetDays int
	minLeadDays       int
}

// NewPlanService 创建生产计划服务
func NewPlanService(db *gorm.DB, repos *repository.Repositories, bus *events.Bus, logger *zap.Logger, harvestOffsetDays, minLeadDays int) *PlanService {
	return &PlanService{
		db:                db,
		planRepo:          repos.Plan,
		varietyRepo:       repos.Variety,
		orderRepo:         repos.Order,
		growingRepo:       repos.Growing,
		bus:               bus,
		logger:            logger,
		harvestOffsetDays: harvestOffsetDays,
		minLeadDays:       minLeadDays,
	}
}

// PlanGenerationResult 排产结果: created/updated plans plus per-variety
// issues. Success is false when any variety was blocked; the other
// varieties' plans are still persisted.
type PlanGenerationResult struct {
	Success bool                    `json:"success"`
	Plans   []entity.ProductionPlan `json:"plans"`
	Issues  []PlanIssue             `json:"issues"`
}

// GeneratePlansForOrder 为订单生成生产计划: one contribution per order
// item, backward-scheduled from the item's harvest date and folded into an
// existing live plan for the same variety and date when one exists.
func (s *PlanService) GeneratePlansForOrder(ctx context.Context, orderID, userID string) (*PlanGenerationResult, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Final() {
		return nil, NewBusinessError("order %s is %s and cannot be planned", order.Code, order.Status)
	}
	if len(order.Items) == 0 {
		return nil, NewBusinessError("order %s has no items", order.Code)
	}

	result, err := s.planItems(ctx, order, order.Items, nil, userID)
	if err != nil {
		return nil, err
	}

	if len(result.Plans) > 0 && order.Status == entity.OrderStatusPending {
		if err := s.orderRepo.UpdateStatus(ctx, order.ID, entity.OrderStatusPlanned); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// planItems runs the scheduling loop for a set of order items. Varieties in
// skip are left untouched (already flagged for manual review).
func (s *PlanService) planItems(ctx context.Context, order *entity.Order, items []entity.OrderItem, skip map[string]bool, userID string) (*PlanGenerationResult, error) {
	result := &PlanGenerationResult{Success: true}
	today := time.Now()

	for i := range items {
		item := &items[i]
		if skip[item.VarietyID] {
			continue
		}

		v, err := s.varietyRepo.FindByID(ctx, item.VarietyID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				result.Success = false
				result.Issues = append(result.Issues, PlanIssue{
					VarietyID: item.VarietyID,
					Issue:     IssueProfileNotFound,
				})
				continue
			}
			return nil, err
		}
		if v.TotalGrowingDays() <= 0 || v.YieldGramsPerUnit.LessThanOrEqual(decimal.Zero) {
			result.Success = false
			result.Issues = append(result.Issues, PlanIssue{
				VarietyID:   v.ID,
				VarietyCode: v.Code,
				Issue:       IssueProfileIncomplete,
			})
			continue
		}

		harvestDate := HarvestDateFor(order.DeliveryDate, item.HarvestDate, s.harvestOffsetDays)
		sched := ComputeSchedule(v, harvestDate)

		if issue := CheckFeasibility(v, sched, today, s.minLeadDays); issue != nil {
			result.Issues = append(result.Issues, *issue)
			if !issue.Warning {
				result.Success = false
				continue
			}
		}

		trays, err := TraysFor(item.GramsRequired, v)
		if err != nil {
			return nil, err
		}

		plan, err := s.attachContribution(ctx, order, item, v, sched, trays, userID)
		if err != nil {
			return nil, err
		}
		result.Plans = append(result.Plans, *plan)
	}
	return result, nil
}

// attachContribution folds one order item into a live plan for its
// (variety, harvest date), creating the plan when none exists. A
// unique-index collision from a concurrent creation is retried once; the
// second pass finds the winner and merges.
func (s *PlanService) attachContribution(ctx context.Context, order *entity.Order, item *entity.OrderItem, v *entity.Variety, sched PlanSchedule, trays int, userID string) (*entity.ProductionPlan, error) {
	plan, err := s.attachOnce(ctx, order, item, v, sched, trays, userID)
	if errors.Is(err, errPlanRace) {
		s.logger.Info("plan creation raced, retrying as merge",
			zap.String("variety_id", v.ID),
			zap.String("harvest_date", sched.HarvestDate.Format("2006-01-02")))
		plan, err = s.attachOnce(ctx, order, item, v, sched, trays, userID)
	}
	return plan, err
}

func (s *PlanService) attachOnce(ctx context.Context, order *entity.Order, item *entity.OrderItem, v *entity.Variety, sched PlanSchedule, trays int, userID string) (*entity.ProductionPlan, error) {
	var result *entity.ProductionPlan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var plans []entity.ProductionPlan
		if err := tx.
			Where("variety_id = ? AND harvest_date = ? AND status IN ?",
				v.ID, sched.HarvestDate.Format("2006-01-02"),
				[]string{entity.PlanStatusDraft, entity.PlanStatusActive}).
			Order("id ASC").
			Find(&plans).Error; err != nil {
			return err
		}

		now := time.Now()

		if len(plans) == 0 {
			plan := &entity.ProductionPlan{
				ID:           newID(),
				VarietyID:    v.ID,
				HarvestDate:  sched.HarvestDate,
				TraysNeeded:  trays,
				GramsNeeded:  item.GramsRequired,
				PlantByDate:  sched.PlantByDate,
				SeedSoakDate: sched.SeedSoakDate,
				Status:       entity.PlanStatusDraft,
				OrderID:      order.ID,
				CalculationDetails: entity.JSONB{
					"buffer_percentage":    v.BufferPercentage.String(),
					"yield_grams_per_unit": v.YieldGramsPerUnit.String(),
					"total_growing_days":   sched.TotalGrowingDays,
					"history": []interface{}{
						historyEntry("created", order.ID, item.ID, item.GramsRequired, trays, userID, now),
					},
				},
			}
			if err := tx.Create(plan).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return errPlanRace
				}
				return err
			}
			if err := tx.Create(&entity.PlanContributor{
				ID:            newID(),
				PlanID:        plan.ID,
				OrderID:       order.ID,
				OrderItemID:   item.ID,
				GramsRequired: item.GramsRequired,
				TraysRequired: trays,
				Status:        entity.ContributorStatusActive,
			}).Error; err != nil {
				return err
			}
			result = plan
			return nil
		}

		// 合并到最早的计划
		host := &plans[0]
		for i := 1; i < len(plans); i++ {
			if err := s.mergePlanInto(tx, &plans[i], host, userID); err != nil {
				return err
			}
		}

		var existing entity.PlanContributor
		err := tx.
			Where("order_item_id = ? AND plan_id = ? AND status = ?",
				item.ID, host.ID, entity.ContributorStatusActive).
			First(&existing).Error
		switch {
		case err == nil:
			existing.GramsRequired = item.GramsRequired
			existing.TraysRequired = trays
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			appendHistory(host, historyEntry("contribution_updated", order.ID, item.ID, item.GramsRequired, trays, userID, now))
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&entity.PlanContributor{
				ID:            newID(),
				PlanID:        host.ID,
				OrderID:       order.ID,
				OrderItemID:   item.ID,
				GramsRequired: item.GramsRequired,
				TraysRequired: trays,
				Status:        entity.ContributorStatusActive,
			}).Error; err != nil {
				return err
			}
			appendHistory(host, historyEntry("contribution_added", order.ID, item.ID, item.GramsRequired, trays, userID, now))
		default:
			return err
		}

		if err := s.recomputeTotals(tx, host); err != nil {
			return err
		}
		result = host
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// mergePlanInto cancels a duplicate plan and reassigns its contributors to
// the host. Duplicates can appear transiently under concurrent creation.
func (s *PlanService) mergePlanInto(tx *gorm.DB, dup, host *entity.ProductionPlan, userID string) error {
	if err := tx.Model(&entity.PlanContributor{}).
		Where("plan_id = ?", dup.ID).
		Update("plan_id", host.ID).Error; err != nil {
		return err
	}
	dup.Status = entity.PlanStatusCancelled
	dup.CancelReason = fmt.Sprintf("merged into plan %s", host.ID)
	if err := tx.Save(dup).Error; err != nil {
		return err
	}
	appendHistory(host, map[string]interface{}{
		"action":  "plan_merged",
		"plan_id": dup.ID,
		"user_id": userID,
		"at":      time.Now().Format(time.RFC3339),
	})
	return nil
}

// recomputeTotals rewrites the plan totals from its active contributors.
// Totals are always recomputed from scratch so repeated edits cannot drift.
func (s *PlanService) recomputeTotals(tx *gorm.DB, plan *entity.ProductionPlan) error {
	var contributors []entity.PlanContributor
	if err := tx.
		Where("plan_id = ? AND status = ?", plan.ID, entity.ContributorStatusActive).
		Find(&contributors).Error; err != nil {
		return err
	}

	grams := decimal.Zero
	trays := 0
	for _, c := range contributors {
		grams = grams.Add(c.GramsRequired)
		trays += c.TraysRequired
	}
	plan.GramsNeeded = grams
	plan.TraysNeeded = trays
	return tx.Save(plan).Error
}

func historyEntry(action, orderID, itemID string, grams decimal.Decimal, trays int, userID string, at time.Time) map[string]interface{} {
	return map[string]interface{}{
		"action":        action,
		"order_id":      orderID,
		"order_item_id": itemID,
		"grams":         grams.String(),
		"trays":         trays,
		"user_id":       userID,
		"at":            at.Format(time.RFC3339),
	}
}

func appendHistory(plan *entity.ProductionPlan, entry map[string]interface{}) {
	if plan.CalculationDetails == nil {
		plan.CalculationDetails = entity.JSONB{}
	}
	history, _ := plan.CalculationDetails["history"].([]interface{})
	plan.CalculationDetails["history"] = append(history, entry)
}

// UpdatePlansForOrder 订单变更后重排: contributions are recomputed from the
// order's current items, never patched by deltas. Plans that already have
// trays on the bench are flagged for manual review and left untouched.
func (s *PlanService) UpdatePlansForOrder(ctx context.Context, orderID, userID string) (*PlanGenerationResult, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Final() {
		return nil, NewBusinessError("order %s is %s and cannot be replanned", order.Code, order.Status)
	}

	plans, err := s.planRepo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	skip := make(map[string]bool)
	var reviewIssues []PlanIssue

	for i := range plans {
		plan := &plans[i]
		units, err := s.growingRepo.CountByPlan(ctx, plan.ID)
		if err != nil {
			return nil, err
		}
		if units > 0 {
			if err := s.flagManualReview(ctx, plan, order.ID, userID); err != nil {
				return nil, err
			}
			skip[plan.VarietyID] = true
			reviewIssues = append(reviewIssues, PlanIssue{
				VarietyID: plan.VarietyID,
				Issue:     IssueManualReviewFlagged,
				Warning:   true,
			})
			continue
		}
		if err := s.detachOrder(ctx, plan, order.ID, userID, "order updated"); err != nil {
			return nil, err
		}
	}

	result, err := s.planItems(ctx, order, order.Items, skip, userID)
	if err != nil {
		return nil, err
	}
	result.Issues = append(result.Issues, reviewIssues...)
	return result, nil
}

// flagManualReview marks a plan whose trays are already growing; the
// automatic engine never mutates such a plan.
func (s *PlanService) flagManualReview(ctx context.Context, plan *entity.ProductionPlan, orderID, userID string) error {
	if plan.CalculationDetails == nil {
		plan.CalculationDetails = entity.JSONB{}
	}
	plan.CalculationDetails["manual_review"] = true
	appendHistory(plan, map[string]interface{}{
		"action":   "manual_review_flagged",
		"order_id": orderID,
		"user_id":  userID,
		"at":       time.Now().Format(time.RFC3339),
	})
	if err := s.planRepo.Update(ctx, plan); err != nil {
		return err
	}
	s.bus.Publish(ctx, events.Event{
		Type:    events.TypePlanReviewRequired,
		PlanID:  plan.ID,
		OrderID: orderID,
		Payload: map[string]interface{}{
			"variety_id":   plan.VarietyID,
			"harvest_date": plan.HarvestDate.Format("2006-01-02"),
		},
	})
	return nil
}

// detachOrder marks the order's contributors removed and recomputes the
// plan; a plan whose last contributor leaves is cancelled.
func (s *PlanService) detachOrder(ctx context.Context, plan *entity.ProductionPlan, orderID, userID, reason string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if err := tx.Model(&entity.PlanContributor{}).
			Where("plan_id = ? AND order_id = ? AND status = ?",
				plan.ID, orderID, entity.ContributorStatusActive).
			Updates(map[string]interface{}{
				"status":     entity.ContributorStatusRemoved,
				"removed_at": now,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}
		appendHistory(plan, map[string]interface{}{
			"action":   "contribution_removed",
			"order_id": orderID,
			"reason":   reason,
			"user_id":  userID,
			"at":       now.Format(time.RFC3339),
		})

		var remaining int64
		if err := tx.Model(&entity.PlanContributor{}).
			Where("plan_id = ? AND status = ?", plan.ID, entity.ContributorStatusActive).
			Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			// 冻结最后的数量，便于事后追溯
			plan.Status = entity.PlanStatusCancelled
			plan.CancelReason = "all contributing orders removed"
			return tx.Save(plan).Error
		}
		return s.recomputeTotals(tx, plan)
	})
}

// RemoveOrderFromPlans 订单取消时移除其全部贡献
func (s *PlanService) RemoveOrderFromPlans(ctx context.Context, orderID, userID, reason string) error {
	plans, err := s.planRepo.ListByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	for i := range plans {
		if !plans[i].Live() {
			continue
		}
		if err := s.detachOrder(ctx, &plans[i], orderID, userID, reason); err != nil {
			return err
		}
	}
	return nil
}

// ApprovePlan 审批计划 draft -> active
func (s *PlanService) ApprovePlan(ctx context.Context, planID, userID string) (*entity.ProductionPlan, error) {
	plan, err := s.planRepo.FindByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != entity.PlanStatusDraft {
		return nil, NewBusinessError("plan is %s, only draft plans can be approved", plan.Status)
	}

	now := time.Now()
	plan.Status = entity.PlanStatusActive
	plan.ApprovedBy = &userID
	plan.ApprovedAt = &now
	appendHistory(plan, map[string]interface{}{
		"action":  "approved",
		"user_id": userID,
		"at":      now.Format(time.RFC3339),
	})
	if err := s.planRepo.Update(ctx, plan); err != nil {
		return nil, err
	}

	s.logger.Info("plan approved",
		zap.String("plan_id", plan.ID),
		zap.String("variety_id", plan.VarietyID),
		zap.Int("trays", plan.TraysNeeded))
	return plan, nil
}

// CancelPlan 取消计划: totals are frozen as-is; non-terminal trays on the
// plan are cancelled with it.
func (s *PlanService) CancelPlan(ctx context.Context, planID, userID, reason string) error {
	plan, err := s.planRepo.FindByID(ctx, planID)
	if err != nil {
		return err
	}
	if !plan.Live() {
		return NewBusinessError("plan is already %s", plan.Status)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		plan.Status = entity.PlanStatusCancelled
		plan.CancelReason = reason
		appendHistory(plan, map[string]interface{}{
			"action":  "cancelled",
			"reason":  reason,
			"user_id": userID,
			"at":      now.Format(time.RFC3339),
		})
		if err := tx.Save(plan).Error; err != nil {
			return err
		}

		var units []entity.GrowingUnit
		if err := tx.
			Where("plan_id = ? AND current_stage NOT IN ?",
				plan.ID, []string{entity.StageHarvested, entity.StageCancelled}).
			Find(&units).Error; err != nil {
			return err
		}
		for i := range units {
			units[i].CurrentStage = entity.StageCancelled
			if err := tx.Save(&units[i]).Error; err != nil {
				return err
			}
			if err := tx.Create(&entity.CropLog{
				ID:     newID(),
				UnitID: units[i].ID,
				Action: entity.CropLogCancelled,
				UserID: userID,
				Detail: entity.JSONB{"reason": "plan cancelled", "plan_id": plan.ID},
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// CompleteIfHarvested 计划全部托盘收获后置为完成
func (s *PlanService) CompleteIfHarvested(ctx context.Context, planID string) error {
	plan, err := s.planRepo.FindByID(ctx, planID)
	if err != nil {
		return err
	}
	if plan.Status != entity.PlanStatusActive {
		return nil
	}

	units, err := s.growingRepo.ListByPlan(ctx, planID)
	if err != nil {
		return err
	}
	if len(units) == 0 {
		return nil
	}
	for _, u := range units {
		if u.CurrentStage != entity.StageHarvested && u.CurrentStage != entity.StageCancelled {
			return nil
		}
	}

	plan.Status = entity.PlanStatusCompleted
	appendHistory(plan, map[string]interface{}{
		"action": "completed",
		"at":     time.Now().Format(time.RFC3339),
	})
	return s.planRepo.Update(ctx, plan)
}

// Get 获取计划详情
func (s *PlanService) Get(ctx context.Context, id string) (*entity.ProductionPlan, error) {
	return s.planRepo.FindByID(ctx, id)
}

// List 分页获取计划列表
func (s *PlanService) List(ctx context.Context, page, pageSize int, filters map[string]interface{}) ([]entity.ProductionPlan, int64, error) {
	return s.planRepo.List(ctx, page, pageSize, filters)
}

// ListContributorPlans 获取订单贡献的全部计划
func (s *PlanService) ListContributorPlans(ctx context.Context, orderID string) ([]entity.ProductionPlan, error) {
	return s.planRepo.ListByOrder(ctx, orderID)
}

// ListContributors 获取计划贡献明细
func (s *PlanService) ListContributors(ctx context.Context, planID string) ([]entity.PlanContributor, error) {
	return s.planRepo.ListContributors(ctx, planID)
}
