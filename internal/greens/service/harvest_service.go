package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bitfantasy/sprout/internal/greens/entity"
	"github.com/bitfantasy/sprout/internal/greens/events"
	"github.com/bitfantasy/sprout/internal/greens/repository"
)

var hundred = decimal.NewFromInt(100)

// HarvestService 收获服务: records actual weights against physical trays
// and reconciles them with the lifecycle.
type HarvestService struct {
	db          *gorm.DB
	harvestRepo *repository.HarvestRepository
	growingRepo *repository.GrowingRepository
	varietyRepo *repository.VarietyRepository
	planSvc     *PlanService
	growingSvc  *GrowingService
	bus         *events.Bus
	logger      *zap.Logger
}

// NewHarvestService 创建收获服务
func NewHarvestService(db *gorm.DB, repos *repository.Repositories, bus *events.Bus, logger *zap.Logger) *HarvestService {
	return &HarvestService{
		db:          db,
		harvestRepo: repos.Harvest,
		growingRepo: repos.Growing,
		varietyRepo: repos.Variety,
		bus:         bus,
		logger:      logger,
	}
}

// SetServices 注入协作服务（避免构造环）
func (s *HarvestService) SetServices(planSvc *PlanService, growingSvc *GrowingService) {
	s.planSvc = planSvc
	s.growingSvc = growingSvc
}

// HarvestLineInput 收获行项入参
type HarvestLineInput struct {
	UnitID               string          `json:"unit_id" binding:"required"`
	HarvestedWeightGrams decimal.Decimal `json:"harvested_weight_grams"`
	PercentageHarvested  decimal.Decimal `json:"percentage_harvested"`
	Notes                string          `json:"notes"`
}

// SubmitHarvestRequest 提交收获入参
type SubmitHarvestRequest struct {
	VarietyID   string             `json:"variety_id" binding:"required"`
	HarvestDate time.Time          `json:"harvest_date" binding:"required"`
	Notes       string             `json:"notes"`
	Lines       []HarvestLineInput `json:"lines" binding:"required"`
}

// Submit 提交收获记录: every violation across all lines is collected before
// rejection; on a clean submission the record, its lines and the stage
// transitions commit atomically.
func (s *HarvestService) Submit(ctx context.Context, userID string, req *SubmitHarvestRequest) (*entity.HarvestRecord, error) {
	if _, err := s.varietyRepo.FindByID(ctx, req.VarietyID); err != nil {
		return nil, err
	}

	units, verrs, err := s.validateLines(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	if len(verrs) > 0 {
		return nil, verrs
	}

	record := &entity.HarvestRecord{
		ID:          newID(),
		VarietyID:   req.VarietyID,
		HarvestDate: req.HarvestDate,
		UserID:      userID,
		Notes:       req.Notes,
	}

	var fullyHarvested []*entity.GrowingUnit
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		done, err := s.applyLines(tx, record, req.Lines, units, userID)
		if err != nil {
			return err
		}
		fullyHarvested = done
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterHarvest(ctx, fullyHarvested)
	s.logger.Info("harvest recorded",
		zap.String("harvest_id", record.ID),
		zap.String("variety_id", record.VarietyID),
		zap.Int("trays", record.TrayCount),
		zap.String("total_grams", record.TotalWeightGrams.String()))
	return s.harvestRepo.FindByID(ctx, record.ID)
}

// Update 修正收获记录: all lines are detached and re-attached, totals and
// unit stages recomputed as on creation, so corrections are idempotent.
func (s *HarvestService) Update(ctx context.Context, harvestID, userID string, req *SubmitHarvestRequest) (*entity.HarvestRecord, error) {
	record, err := s.harvestRepo.FindByID(ctx, harvestID)
	if err != nil {
		return nil, err
	}

	// 本记录已覆盖的托盘可再次引用（修正场景）
	owned := make(map[string]bool, len(record.Lines))
	for _, l := range record.Lines {
		owned[l.UnitID] = true
	}

	units, verrs, err := s.validateLines(ctx, req, owned)
	if err != nil {
		return nil, err
	}
	if len(verrs) > 0 {
		return nil, verrs
	}

	newByUnit := make(map[string]*HarvestLineInput, len(req.Lines))
	for i := range req.Lines {
		newByUnit[req.Lines[i].UnitID] = &req.Lines[i]
	}

	var fullyHarvested []*entity.GrowingUnit
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 先回退旧记录置为已收获、但新行项不再满 100% 的托盘
		for _, old := range record.Lines {
			if old.PercentageHarvested.LessThan(hundred) {
				continue
			}
			nl, ok := newByUnit[old.UnitID]
			if ok && nl.PercentageHarvested.GreaterThanOrEqual(hundred) {
				continue
			}
			if err := s.revertHarvested(tx, old.UnitID, userID); err != nil {
				return err
			}
		}

		if err := tx.Where("harvest_id = ?", record.ID).
			Delete(&entity.HarvestLine{}).Error; err != nil {
			return err
		}

		record.VarietyID = req.VarietyID
		record.HarvestDate = req.HarvestDate
		record.Notes = req.Notes
		record.UserID = userID

		done, err := s.applyLines(tx, record, req.Lines, units, userID)
		if err != nil {
			return err
		}
		fullyHarvested = done
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterHarvest(ctx, fullyHarvested)
	return s.harvestRepo.FindByID(ctx, record.ID)
}

// validateLines 校验全部行项: collected, not fail-fast. owned marks units
// whose harvested state belongs to the record being corrected.
func (s *HarvestService) validateLines(ctx context.Context, req *SubmitHarvestRequest, owned map[string]bool) (map[string]*entity.GrowingUnit, ValidationErrors, error) {
	var verrs ValidationErrors
	if len(req.Lines) == 0 {
		verrs = append(verrs, FieldError{Field: "lines", Reason: "at least one line is required"})
		return nil, verrs, nil
	}

	ids := make([]string, 0, len(req.Lines))
	seen := make(map[string]bool, len(req.Lines))
	for i := range req.Lines {
		l := &req.Lines[i]
		field := fmt.Sprintf("lines[%d]", i)
		if l.UnitID == "" {
			verrs = append(verrs, FieldError{Field: field + ".unit_id", Reason: "required"})
			continue
		}
		if seen[l.UnitID] {
			verrs = append(verrs, FieldError{Field: field + ".unit_id", Reason: "duplicate tray in submission"})
			continue
		}
		seen[l.UnitID] = true
		ids = append(ids, l.UnitID)

		if l.PercentageHarvested.LessThan(decimal.Zero) || l.PercentageHarvested.GreaterThan(hundred) {
			verrs = append(verrs, FieldError{Field: field + ".percentage_harvested", Reason: "must be between 0 and 100"})
		}
		if l.HarvestedWeightGrams.LessThan(decimal.Zero) {
			verrs = append(verrs, FieldError{Field: field + ".harvested_weight_grams", Reason: "must not be negative"})
		}
		weightZero := l.HarvestedWeightGrams.IsZero()
		pctZero := l.PercentageHarvested.IsZero()
		if weightZero != pctZero {
			verrs = append(verrs, FieldError{Field: field, Reason: "zero weight and zero percentage imply each other"})
		}
	}

	found, err := s.growingRepo.FindUnitsByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	units := make(map[string]*entity.GrowingUnit, len(found))
	for i := range found {
		units[found[i].ID] = &found[i]
	}

	for _, id := range ids {
		u, ok := units[id]
		if !ok {
			verrs = append(verrs, FieldError{Entity: id, Reason: "tray not found"})
			continue
		}
		if u.VarietyID != req.VarietyID {
			verrs = append(verrs, FieldError{Entity: u.TrayNumber, Reason: "tray grows a different variety"})
		}
		if u.Terminal() && !(u.CurrentStage == entity.StageHarvested && owned[u.ID]) {
			verrs = append(verrs, FieldError{Entity: u.TrayNumber, Reason: fmt.Sprintf("tray is already %s", u.CurrentStage)})
		}
	}
	return units, verrs, nil
}

// applyLines creates the lines, recomputes the record totals from them and
// applies stage effects: 100% transitions the tray to harvested, anything
// less is a partial harvest noted in the audit trail.
func (s *HarvestService) applyLines(tx *gorm.DB, record *entity.HarvestRecord, lines []HarvestLineInput, units map[string]*entity.GrowingUnit, userID string) ([]*entity.GrowingUnit, error) {
	total := decimal.Zero
	var fullyHarvested []*entity.GrowingUnit
	now := time.Now()

	for i := range lines {
		l := &lines[i]
		if err := tx.Create(&entity.HarvestLine{
			ID:                   newID(),
			HarvestID:            record.ID,
			UnitID:               l.UnitID,
			HarvestedWeightGrams: l.HarvestedWeightGrams,
			PercentageHarvested:  l.PercentageHarvested,
			Notes:                l.Notes,
		}).Error; err != nil {
			return nil, err
		}
		total = total.Add(l.HarvestedWeightGrams)

		unit := units[l.UnitID]
		if l.PercentageHarvested.GreaterThanOrEqual(hundred) {
			if unit.CurrentStage != entity.StageHarvested {
				unit.CurrentStage = entity.StageHarvested
				unit.HarvestedAt = &now
				if err := tx.Save(unit).Error; err != nil {
					return nil, err
				}
				if err := tx.Create(&entity.CropLog{
					ID:     newID(),
					UnitID: unit.ID,
					Action: entity.CropLogHarvested,
					UserID: userID,
					Detail: entity.JSONB{
						"harvest_id": record.ID,
						"grams":      l.HarvestedWeightGrams.String(),
					},
				}).Error; err != nil {
					return nil, err
				}
			}
			fullyHarvested = append(fullyHarvested, unit)
		} else {
			if err := tx.Create(&entity.CropLog{
				ID:     newID(),
				UnitID: unit.ID,
				Action: entity.CropLogPartialHarvest,
				UserID: userID,
				Detail: entity.JSONB{
					"harvest_id": record.ID,
					"grams":      l.HarvestedWeightGrams.String(),
					"percentage": l.PercentageHarvested.String(),
				},
			}).Error; err != nil {
				return nil, err
			}
		}
	}

	record.TotalWeightGrams = total
	record.TrayCount = len(lines)
	record.AverageWeightPerTray = decimal.Zero
	if record.TrayCount > 0 {
		record.AverageWeightPerTray = total.DivRound(decimal.NewFromInt(int64(record.TrayCount)), 2)
	}
	return fullyHarvested, tx.Save(record).Error
}

// revertHarvested restores a unit previously transitioned by this record to
// its latest pre-harvest stage.
func (s *HarvestService) revertHarvested(tx *gorm.DB, unitID, userID string) error {
	var unit entity.GrowingUnit
	if err := tx.Where("id = ?", unitID).First(&unit).Error; err != nil {
		return err
	}
	if unit.CurrentStage != entity.StageHarvested {
		return nil
	}
	prev := entity.StageLight
	for _, st := range []string{entity.StageLight, entity.StageBlackout, entity.StageGermination, entity.StageSoaking} {
		if unit.StageEnteredAt(st) != nil {
			prev = st
			break
		}
	}
	unit.CurrentStage = prev
	unit.HarvestedAt = nil
	if err := tx.Save(&unit).Error; err != nil {
		return err
	}
	return tx.Create(&entity.CropLog{
		ID:     newID(),
		UnitID: unit.ID,
		Action: entity.CropLogStageTimeEdit,
		UserID: userID,
		Detail: entity.JSONB{"reverted_to": prev, "reason": "harvest record corrected"},
	}).Error
}

// afterHarvest runs the order/plan checks for fully harvested trays.
func (s *HarvestService) afterHarvest(ctx context.Context, units []*entity.GrowingUnit) {
	orders := make(map[string]bool)
	plans := make(map[string]bool)
	for _, u := range units {
		if u.OrderID != nil {
			orders[*u.OrderID] = true
		}
		if u.PlanID != nil {
			plans[*u.PlanID] = true
		}
	}
	for orderID := range orders {
		if s.growingSvc == nil {
			break
		}
		done, err := s.growingSvc.allUnitsIn(ctx, orderID, entity.StageHarvested)
		if err != nil {
			s.logger.Warn("order harvest check failed", zap.Error(err))
			continue
		}
		if done {
			s.bus.Publish(ctx, events.Event{
				Type:    events.TypeOrderHarvested,
				OrderID: orderID,
			})
		}
	}
	for planID := range plans {
		if s.planSvc == nil {
			break
		}
		if err := s.planSvc.CompleteIfHarvested(ctx, planID); err != nil {
			s.logger.Warn("plan completion check failed", zap.Error(err))
		}
	}
}

// Get 获取收获记录详情
func (s *HarvestService) Get(ctx context.Context, id string) (*entity.HarvestRecord, error) {
	return s.harvestRepo.FindByID(ctx, id)
}

// List 分页获取收获记录列表
func (s *HarvestService) List(ctx context.Context, page, pageSize int, filters map[string]interface{}) ([]entity.HarvestRecord, int64, error) {
	return s.harvestRepo.List(ctx, page, pageSize, filters)
}
