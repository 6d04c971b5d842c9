package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bitfantasy/sprout/internal/greens/entity"
	"github.com/bitfantasy/sprout/internal/greens/repository"
)

// VarietyService 品种服务: the grow-profile catalog.
type VarietyService struct {
	varietyRepo *repository.VarietyRepository
	logger      *zap.Logger
}

// NewVarietyService 创建品种服务
func NewVarietyService(repos *repository.Repositories, logger *zap.Logger) *VarietyService {
	return &VarietyService{varietyRepo: repos.Variety, logger: logger}
}

// VarietyRequest 品种入参
type VarietyRequest struct {
	Code              string          `json:"code" binding:"required"`
	Name              string          `json:"name" binding:"required"`
	Status            string          `json:"status"`
	SeedSoakHours     int             `json:"seed_soak_hours"`
	GerminationDays   int             `json:"germination_days"`
	BlackoutDays      int             `json:"blackout_days"`
	LightDays         int             `json:"light_days"`
	DaysToMaturity    *int            `json:"days_to_maturity"`
	BufferPercentage  decimal.Decimal `json:"buffer_percentage"`
	YieldGramsPerUnit decimal.Decimal `json:"yield_grams_per_unit"`
	Notes             string          `json:"notes"`
}

func (r *VarietyRequest) validate() ValidationErrors {
	var verrs ValidationErrors
	if r.SeedSoakHours < 0 {
		verrs = append(verrs, FieldError{Field: "seed_soak_hours", Reason: "must not be negative"})
	}
	for field, days := range map[string]int{
		"germination_days": r.GerminationDays,
		"blackout_days":    r.BlackoutDays,
		"light_days":       r.LightDays,
	} {
		if days < 0 {
			verrs = append(verrs, FieldError{Field: field, Reason: "must not be negative"})
		}
	}
	if r.GerminationDays+r.BlackoutDays+r.LightDays <= 0 && (r.DaysToMaturity == nil || *r.DaysToMaturity <= 0) {
		verrs = append(verrs, FieldError{Field: "germination_days", Reason: "grow profile has no duration"})
	}
	if r.BufferPercentage.LessThan(decimal.Zero) {
		verrs = append(verrs, FieldError{Field: "buffer_percentage", Reason: "must not be negative"})
	}
	if r.YieldGramsPerUnit.LessThanOrEqual(decimal.Zero) {
		verrs = append(verrs, FieldError{Field: "yield_grams_per_unit", Reason: "must be positive"})
	}
	return verrs
}

// Create 创建品种
func (s *VarietyService) Create(ctx context.Context, req *VarietyRequest) (*entity.Variety, error) {
	if verrs := req.validate(); len(verrs) > 0 {
		return nil, verrs
	}
	if _, err := s.varietyRepo.FindByCode(ctx, req.Code); err == nil {
		return nil, NewBusinessError("variety code %s already exists", req.Code)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = entity.VarietyStatusActive
	}
	v := &entity.Variety{
		ID:                newID(),
		Code:              req.Code,
		Name:              req.Name,
		Status:            status,
		SeedSoakHours:     req.SeedSoakHours,
		GerminationDays:   req.GerminationDays,
		BlackoutDays:      req.BlackoutDays,
		LightDays:         req.LightDays,
		DaysToMaturity:    req.DaysToMaturity,
		BufferPercentage:  req.BufferPercentage,
		YieldGramsPerUnit: req.YieldGramsPerUnit,
		Notes:             req.Notes,
	}
	if err := s.varietyRepo.Create(ctx, v); err != nil {
		return nil, err
	}
	s.logger.Info("variety created", zap.String("code", v.Code))
	return v, nil
}

// Update 更新品种: profile changes affect future scheduling only; existing
// plans keep the figures captured in their calculation details.
func (s *VarietyService) Update(ctx context.Context, id string, req *VarietyRequest) (*entity.Variety, error) {
	if verrs := req.validate(); len(verrs) > 0 {
		return nil, verrs
	}
	v, err := s.varietyRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	v.Code = req.Code
	v.Name = req.Name
	if req.Status != "" {
		v.Status = req.Status
	}
	v.SeedSoakHours = req.SeedSoakHours
	v.GerminationDays = req.GerminationDays
	v.BlackoutDays = req.BlackoutDays
	v.LightDays = req.LightDays
	v.DaysToMaturity = req.DaysToMaturity
	v.BufferPercentage = req.BufferPercentage
	v.YieldGramsPerUnit = req.YieldGramsPerUnit
	v.Notes = req.Notes

	if err := s.varietyRepo.Update(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Get 获取品种
func (s *VarietyService) Get(ctx context.Context, id string) (*entity.Variety, error) {
	return s.varietyRepo.FindByID(ctx, id)
}

// List 分页获取品种列表
func (s *VarietyService) List(ctx context.Context, page, pageSize int) ([]entity.Variety, int64, error) {
	return s.varietyRepo.List(ctx, page, pageSize)
}
