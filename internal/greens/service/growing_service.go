package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bitfantasy/sprout/internal/greens/entity"
	"github.com/bitfantasy/sprout/internal/greens/events"
	"github.com/bitfantasy/sprout/internal/greens/repository"
)

// GrowingService 种植生命周期服务: the tray stage machine.
type GrowingService struct {
	db          *gorm.DB
	growingRepo *repository.GrowingRepository
	varietyRepo *repository.VarietyRepository
	planRepo    *repository.PlanRepository
	planSvc     *PlanService
	bus         *events.Bus
	logger      *zap.Logger
}

// NewGrowingService 创建种植服务
func NewGrowingService(db *gorm.DB, repos *repository.Repositories, bus *events.Bus, logger *zap.Logger) *GrowingService {
	return &GrowingService{
		db:          db,
		growingRepo: repos.Growing,
		varietyRepo: repos.Variety,
		planRepo:    repos.Plan,
		bus:         bus,
		logger:      logger,
	}
}

// SetPlanService 注入计划服务（避免构造环）
func (s *GrowingService) SetPlanService(planSvc *PlanService) {
	s.planSvc = planSvc
}

// StartPlan 开工: creates the plan's trays as a batch and stamps them into
// their first stage. Tray allocation follows the contributor split so every
// tray traces back to one order.
func (s *GrowingService) StartPlan(ctx context.Context, planID, userID string) (*entity.GrowingBatch, error) {
	plan, err := s.planRepo.FindByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != entity.PlanStatusActive {
		return nil, NewBusinessError("plan is %s, only approved plans can be started", plan.Status)
	}

	existing, err := s.growingRepo.CountByPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, NewBusinessError("plan already has trays on the bench")
	}

	v, err := s.varietyRepo.FindByID(ctx, plan.VarietyID)
	if err != nil {
		return nil, err
	}
	contributors, err := s.planRepo.ListActiveContributors(ctx, planID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	stage := InitialStage(v)

	batch := &entity.GrowingBatch{
		ID:        newID(),
		VarietyID: v.ID,
		PlanID:    &plan.ID,
	}

	var units []entity.GrowingUnit
	for ci := range contributors {
		c := &contributors[ci]
		for i := 0; i < c.TraysRequired; i++ {
			trayNo, err := s.growingRepo.NextTrayNumber(ctx)
			if err != nil {
				return nil, err
			}
			unit := entity.GrowingUnit{
				ID:           newID(),
				BatchID:      &batch.ID,
				VarietyID:    v.ID,
				PlanID:       &plan.ID,
				OrderID:      &c.OrderID,
				TrayNumber:   trayNo,
				CurrentStage: stage,
			}
			unit.SetStageEnteredAt(stage, &now)
			units = append(units, unit)
		}
	}
	if len(units) == 0 {
		return nil, NewBusinessError("plan has no trays to start")
	}

	if err := s.growingRepo.CreateBatch(ctx, batch, units); err != nil {
		return nil, err
	}
	for i := range units {
		_ = s.growingRepo.AddLog(ctx, &entity.CropLog{
			ID:     newID(),
			UnitID: units[i].ID,
			Action: entity.CropLogPlanted,
			UserID: userID,
			Detail: entity.JSONB{"stage": stage, "plan_id": plan.ID},
		})
	}

	// 无需浸种的托盘直接进入发芽，即视为已播种
	if stage == entity.StageGermination {
		seen := make(map[string]bool)
		for i := range units {
			if units[i].OrderID != nil && !seen[*units[i].OrderID] {
				seen[*units[i].OrderID] = true
				s.bus.Publish(ctx, events.Event{
					Type:    events.TypeCropPlanted,
					OrderID: *units[i].OrderID,
					PlanID:  plan.ID,
				})
			}
		}
	}

	s.logger.Info("plan started",
		zap.String("plan_id", plan.ID),
		zap.String("batch_id", batch.ID),
		zap.Int("trays", len(units)))
	batch.Units = units
	return batch, nil
}

// StageChange 阶段流转结果
type StageChange struct {
	UnitID     string `json:"unit_id"`
	TrayNumber string `json:"tray_number"`
	From       string `json:"from"`
	To         string `json:"to"`
}

// AdvanceStage 推进托盘到下一阶段: the current stage must carry its entry
// timestamp, otherwise the transition is rejected and the unit is untouched.
func (s *GrowingService) AdvanceStage(ctx context.Context, unitID, userID string) (*StageChange, error) {
	unit, err := s.growingRepo.FindUnitByID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if unit.Terminal() {
		return nil, &InvalidTransitionError{
			UnitID:     unit.ID,
			TrayNumber: unit.TrayNumber,
			From:       unit.CurrentStage,
			Reason:     "unit is in a terminal stage",
		}
	}

	v := unit.Variety
	if v == nil {
		v, err = s.varietyRepo.FindByID(ctx, unit.VarietyID)
		if err != nil {
			return nil, err
		}
	}

	next := NextStage(unit, v)
	if next == "" {
		return nil, &InvalidTransitionError{
			UnitID:     unit.ID,
			TrayNumber: unit.TrayNumber,
			From:       unit.CurrentStage,
			Reason:     "no further stage",
		}
	}
	if unit.StageEnteredAt(unit.CurrentStage) == nil {
		return nil, &InvalidTransitionError{
			UnitID:     unit.ID,
			TrayNumber: unit.TrayNumber,
			From:       unit.CurrentStage,
			To:         next,
			Reason:     "current stage has no entry timestamp",
		}
	}

	now := time.Now()
	from := unit.CurrentStage
	unit.CurrentStage = next
	unit.SetStageEnteredAt(next, &now)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(unit).Error; err != nil {
			return err
		}
		action := entity.CropLogStageAdvanced
		if next == entity.StageHarvested {
			action = entity.CropLogHarvested
		}
		return tx.Create(&entity.CropLog{
			ID:     newID(),
			UnitID: unit.ID,
			Action: action,
			UserID: userID,
			Detail: entity.JSONB{"from": from, "to": next},
		}).Error
	})
	if err != nil {
		return nil, err
	}

	s.afterStageChange(ctx, unit, from, next)
	return &StageChange{UnitID: unit.ID, TrayNumber: unit.TrayNumber, From: from, To: next}, nil
}

// afterStageChange emits the lifecycle events a transition implies.
func (s *GrowingService) afterStageChange(ctx context.Context, unit *entity.GrowingUnit, from, to string) {
	if unit.OrderID == nil {
		if to == entity.StageHarvested && unit.PlanID != nil && s.planSvc != nil {
			if err := s.planSvc.CompleteIfHarvested(ctx, *unit.PlanID); err != nil {
				s.logger.Warn("plan completion check failed", zap.Error(err))
			}
		}
		return
	}
	orderID := *unit.OrderID

	if from == entity.StageSoaking && to == entity.StageGermination {
		s.bus.Publish(ctx, events.Event{
			Type:    events.TypeCropPlanted,
			OrderID: orderID,
			UnitID:  unit.ID,
		})
	}

	if to == entity.StageHarvested {
		allDone, err := s.allUnitsIn(ctx, orderID, entity.StageHarvested)
		if err != nil {
			s.logger.Warn("order harvest check failed", zap.Error(err))
		} else if allDone {
			s.bus.Publish(ctx, events.Event{
				Type:    events.TypeOrderHarvested,
				OrderID: orderID,
			})
		}
		if unit.PlanID != nil && s.planSvc != nil {
			if err := s.planSvc.CompleteIfHarvested(ctx, *unit.PlanID); err != nil {
				s.logger.Warn("plan completion check failed", zap.Error(err))
			}
		}
		return
	}

	s.checkAllReady(ctx, orderID)
}

// allUnitsIn reports whether every non-cancelled unit of the order reached
// the given stage.
func (s *GrowingService) allUnitsIn(ctx context.Context, orderID, stage string) (bool, error) {
	units, err := s.growingRepo.ListByOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	counted := 0
	for _, u := range units {
		if u.CurrentStage == entity.StageCancelled {
			continue
		}
		if u.CurrentStage != stage {
			return false, nil
		}
		counted++
	}
	return counted > 0, nil
}

// checkAllReady publishes the all-ready event when every live unit of the
// order is simultaneously ready for harvest. Consumers are idempotent, so
// re-publishing on later transitions is harmless.
func (s *GrowingService) checkAllReady(ctx context.Context, orderID string) {
	units, err := s.growingRepo.ListByOrder(ctx, orderID)
	if err != nil {
		s.logger.Warn("order readiness check failed", zap.Error(err))
		return
	}
	now := time.Now()
	counted := 0
	for i := range units {
		u := &units[i]
		if u.CurrentStage == entity.StageCancelled {
			continue
		}
		if u.CurrentStage == entity.StageHarvested {
			counted++
			continue
		}
		v := u.Variety
		if v == nil {
			v, err = s.varietyRepo.FindByID(ctx, u.VarietyID)
			if err != nil {
				s.logger.Warn("order readiness check failed", zap.Error(err))
				return
			}
		}
		if !ComputeCropStatus(u, v, now).Ready {
			return
		}
		counted++
	}
	if counted == 0 {
		return
	}
	s.bus.Publish(ctx, events.Event{
		Type:    events.TypeAllCropsReady,
		OrderID: orderID,
	})
}

// BulkResult 批量操作结果: failures never stop the rest of the batch.
type BulkResult struct {
	Changed []StageChange `json:"changed"`
	Errors  []FieldError  `json:"errors,omitempty"`
}

// AdvanceStageBulk 批量推进
func (s *GrowingService) AdvanceStageBulk(ctx context.Context, unitIDs []string, userID string) (*BulkResult, error) {
	result := &BulkResult{}
	for _, id := range unitIDs {
		change, err := s.AdvanceStage(ctx, id, userID)
		if err != nil {
			result.Errors = append(result.Errors, FieldError{Entity: id, Reason: err.Error()})
			continue
		}
		result.Changed = append(result.Changed, *change)
	}
	return result, nil
}

// EditStageTime 修正阶段进入时间: shifts the edited timestamp and every
// later recorded timestamp by the same delta, so stage order stays
// monotonic and derived dates move together.
func (s *GrowingService) EditStageTime(ctx context.Context, unitID, stage string, newTime time.Time, userID string) (*entity.GrowingUnit, error) {
	rank := entity.StageRank(stage)
	if rank < 0 {
		return nil, NewBusinessError("unknown stage %q", stage)
	}

	unit, err := s.growingRepo.FindUnitByID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	old := unit.StageEnteredAt(stage)
	if old == nil {
		return nil, NewBusinessError("tray %s never entered stage %s", unit.TrayNumber, stage)
	}

	// 不得早于更早阶段的进入时间
	for _, earlier := range []string{entity.StageSoaking, entity.StageGermination, entity.StageBlackout, entity.StageLight} {
		if entity.StageRank(earlier) >= rank {
			break
		}
		if ts := unit.StageEnteredAt(earlier); ts != nil && newTime.Before(*ts) {
			return nil, NewBusinessError("timestamp for %s would precede %s entry", stage, earlier)
		}
	}

	delta := newTime.Sub(*old)
	for _, st := range []string{entity.StageSoaking, entity.StageGermination, entity.StageBlackout, entity.StageLight, entity.StageHarvested} {
		if entity.StageRank(st) < rank {
			continue
		}
		if ts := unit.StageEnteredAt(st); ts != nil {
			shifted := ts.Add(delta)
			unit.SetStageEnteredAt(st, &shifted)
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(unit).Error; err != nil {
			return err
		}
		return tx.Create(&entity.CropLog{
			ID:     newID(),
			UnitID: unit.ID,
			Action: entity.CropLogStageTimeEdit,
			UserID: userID,
			Detail: entity.JSONB{
				"stage":       stage,
				"old":         old.Format(time.RFC3339),
				"new":         newTime.Format(time.RFC3339),
				"delta_hours": delta.Hours(),
			},
		}).Error
	})
	if err != nil {
		return nil, err
	}

	if unit.OrderID != nil && !unit.Terminal() {
		s.checkAllReady(ctx, *unit.OrderID)
	}
	return unit, nil
}

// FlagReady 人工标记可收获
func (s *GrowingService) FlagReady(ctx context.Context, unitID, userID string) (*entity.GrowingUnit, error) {
	unit, err := s.growingRepo.FindUnitByID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if unit.Terminal() {
		return nil, NewBusinessError("tray %s is %s", unit.TrayNumber, unit.CurrentStage)
	}
	if unit.ReadyFlagged {
		return unit, nil
	}
	unit.ReadyFlagged = true
	if err := s.growingRepo.UpdateUnit(ctx, unit); err != nil {
		return nil, err
	}
	if unit.OrderID != nil {
		s.checkAllReady(ctx, *unit.OrderID)
	}
	return unit, nil
}

// ToggleWatering 暂停/恢复浇水
func (s *GrowingService) ToggleWatering(ctx context.Context, unitID, userID string) (*entity.GrowingUnit, error) {
	unit, err := s.growingRepo.FindUnitByID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	suspended := unit.WateringSuspendedAt != nil
	if suspended {
		unit.WateringSuspendedAt = nil
	} else {
		now := time.Now()
		unit.WateringSuspendedAt = &now
	}
	if err := s.growingRepo.UpdateUnit(ctx, unit); err != nil {
		return nil, err
	}
	_ = s.growingRepo.AddLog(ctx, &entity.CropLog{
		ID:     newID(),
		UnitID: unit.ID,
		Action: entity.CropLogWateringToggle,
		UserID: userID,
		Detail: entity.JSONB{"suspended": !suspended},
	})
	return unit, nil
}

// SetWateringBulk 批量暂停或恢复浇水
func (s *GrowingService) SetWateringBulk(ctx context.Context, unitIDs []string, suspend bool, userID string) (*BulkResult, error) {
	result := &BulkResult{}
	for _, id := range unitIDs {
		unit, err := s.growingRepo.FindUnitByID(ctx, id)
		if err != nil {
			result.Errors = append(result.Errors, FieldError{Entity: id, Reason: err.Error()})
			continue
		}
		if suspend && unit.WateringSuspendedAt == nil {
			now := time.Now()
			unit.WateringSuspendedAt = &now
		} else if !suspend && unit.WateringSuspendedAt != nil {
			unit.WateringSuspendedAt = nil
		} else {
			continue
		}
		if err := s.growingRepo.UpdateUnit(ctx, unit); err != nil {
			result.Errors = append(result.Errors, FieldError{Entity: unit.TrayNumber, Reason: err.Error()})
			continue
		}
		_ = s.growingRepo.AddLog(ctx, &entity.CropLog{
			ID:     newID(),
			UnitID: unit.ID,
			Action: entity.CropLogWateringToggle,
			UserID: userID,
			Detail: entity.JSONB{"suspended": suspend},
		})
		result.Changed = append(result.Changed, StageChange{UnitID: unit.ID, TrayNumber: unit.TrayNumber})
	}
	return result, nil
}

// CancelUnit 取消托盘
func (s *GrowingService) CancelUnit(ctx context.Context, unitID, userID, reason string) error {
	unit, err := s.growingRepo.FindUnitByID(ctx, unitID)
	if err != nil {
		return err
	}
	if unit.Terminal() {
		return NewBusinessError("tray %s is already %s", unit.TrayNumber, unit.CurrentStage)
	}
	unit.CurrentStage = entity.StageCancelled
	if err := s.growingRepo.UpdateUnit(ctx, unit); err != nil {
		return err
	}
	return s.growingRepo.AddLog(ctx, &entity.CropLog{
		ID:     newID(),
		UnitID: unit.ID,
		Action: entity.CropLogCancelled,
		UserID: userID,
		Detail: entity.JSONB{"reason": reason},
	})
}

// CropDetail 托盘详情（含派生状态）
type CropDetail struct {
	Unit   *entity.GrowingUnit `json:"unit"`
	Status CropStatus          `json:"status"`
}

// GetUnit 获取托盘详情
func (s *GrowingService) GetUnit(ctx context.Context, unitID string) (*CropDetail, error) {
	unit, err := s.growingRepo.FindUnitByID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	v := unit.Variety
	if v == nil {
		v, err = s.varietyRepo.FindByID(ctx, unit.VarietyID)
		if err != nil {
			return nil, err
		}
	}
	return &CropDetail{Unit: unit, Status: ComputeCropStatus(unit, v, time.Now())}, nil
}

// ListUnits 分页获取托盘列表（含派生状态）
func (s *GrowingService) ListUnits(ctx context.Context, page, pageSize int, filters map[string]interface{}) ([]CropDetail, int64, error) {
	units, total, err := s.growingRepo.List(ctx, page, pageSize, filters)
	if err != nil {
		return nil, 0, err
	}
	now := time.Now()
	details := make([]CropDetail, 0, len(units))
	for i := range units {
		u := &units[i]
		v := u.Variety
		if v == nil {
			v, err = s.varietyRepo.FindByID(ctx, u.VarietyID)
			if err != nil {
				return nil, 0, err
			}
		}
		details = append(details, CropDetail{Unit: u, Status: ComputeCropStatus(u, v, now)})
	}
	return details, total, nil
}

// ListLogs 获取托盘操作历史
func (s *GrowingService) ListLogs(ctx context.Context, unitID string) ([]entity.CropLog, error) {
	return s.growingRepo.ListLogs(ctx, unitID)
}

// BatchSummary 批次汇总: aggregate fields derived from member trays at
// read time.
type BatchSummary struct {
	Batch       *entity.GrowingBatch `json:"batch"`
	CropCount   int                  `json:"crop_count"`
	TrayNumbers []string             `json:"tray_numbers"`
	Stage       string               `json:"stage"`
}

// GetBatch 获取批次及其派生汇总: the representative stage is the least
// advanced among live trays.
func (s *GrowingService) GetBatch(ctx context.Context, batchID string) (*BatchSummary, error) {
	batch, err := s.growingRepo.FindBatchByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	summary := &BatchSummary{Batch: batch}
	minRank := -1
	for _, u := range batch.Units {
		if u.CurrentStage == entity.StageCancelled {
			continue
		}
		summary.CropCount++
		summary.TrayNumbers = append(summary.TrayNumbers, u.TrayNumber)
		if r := entity.StageRank(u.CurrentStage); minRank < 0 || r < minRank {
			minRank = r
			summary.Stage = u.CurrentStage
		}
	}
	return summary, nil
}

// ScanReadiness 巡检在产托盘: flags trays whose light time has elapsed and
// re-checks order readiness. Run from the scheduler.
func (s *GrowingService) ScanReadiness(ctx context.Context) error {
	units, err := s.growingRepo.ListActive(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	orders := make(map[string]bool)
	for i := range units {
		u := &units[i]
		v := u.Variety
		if v == nil {
			v, err = s.varietyRepo.FindByID(ctx, u.VarietyID)
			if err != nil {
				return err
			}
		}
		st := ComputeCropStatus(u, v, now)
		if st.Ready && u.OrderID != nil {
			orders[*u.OrderID] = true
		}
	}
	for orderID := range orders {
		s.checkAllReady(ctx, orderID)
	}
	return nil
}
