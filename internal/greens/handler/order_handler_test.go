package handler

import (
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bitfantasy/sprout/internal/greens/events"
	"github.com/bitfantasy/sprout/internal/greens/repository"
	"github.com/bitfantasy/sprout/internal/greens/service"
	"github.com/bitfantasy/sprout/internal/greens/testutil"
)

func setupOrderTest(t *testing.T) (*testutil.TestEnv, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	router := testutil.SetupRouter()

	repos := repository.NewRepositories(db)
	bus := events.NewBus(nil, zap.NewNop())
	svcs := service.NewServices(db, repos, bus, zap.NewNop(), 1, 0)
	h := NewHandlers(svcs)

	api := testutil.AuthGroup(router, "/api/v1")
	api.POST("/varieties", h.Variety.Create)
	api.POST("/orders", h.Order.Create)
	api.GET("/orders/:id", h.Order.Get)
	api.POST("/orders/:id/cancel", h.Order.Cancel)
	api.POST("/orders/:id/plans", h.Order.GeneratePlans)
	api.GET("/orders/:id/plans", h.Order.ListPlans)
	api.POST("/plans/:id/approve", h.Plan.Approve)

	return &testutil.TestEnv{DB: db, Router: router, T: t}, db
}

func TestOrderPlanningFlow(t *testing.T) {
	env, _ := setupOrderTest(t)
	token := testutil.DefaultTestToken()

	// 建品种
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/varieties", map[string]interface{}{
		"code":                 "RADISH",
		"name":                 "Red Radish",
		"seed_soak_hours":      0,
		"germination_days":     2,
		"blackout_days":        3,
		"light_days":           4,
		"buffer_percentage":    "5",
		"yield_grams_per_unit": "300",
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	varietyID := resp["data"].(map[string]interface{})["id"].(string)

	// 建订单
	delivery := time.Now().AddDate(0, 0, 20).Format(time.RFC3339)
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/orders", map[string]interface{}{
		"customer_name": "Green Bistro",
		"delivery_date": delivery,
		"items": []map[string]interface{}{
			{"variety_id": varietyID, "grams_required": "900"},
		},
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp = testutil.ParseResponse(w)
	orderData := resp["data"].(map[string]interface{})
	orderID := orderData["id"].(string)
	if orderData["code"] == "" {
		t.Error("Expected a generated order code")
	}

	// 排产
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/orders/"+orderID+"/plans", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp = testutil.ParseResponse(w)
	result := resp["data"].(map[string]interface{})
	if result["success"] != true {
		t.Fatalf("Expected planning success: %s", w.Body.String())
	}
	plans := result["plans"].([]interface{})
	if len(plans) != 1 {
		t.Fatalf("Expected 1 plan, got %d", len(plans))
	}
	planID := plans[0].(map[string]interface{})["id"].(string)

	// 审批
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/plans/"+planID+"/approve", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp = testutil.ParseResponse(w)
	if resp["data"].(map[string]interface{})["status"] != "active" {
		t.Errorf("Expected active plan: %s", w.Body.String())
	}

	// 订单侧能看到计划
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/orders/"+orderID+"/plans", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestOrderCreateValidation(t *testing.T) {
	env, _ := setupOrderTest(t)
	token := testutil.DefaultTestToken()

	// 品种不存在、克数非法：两个错误都要收集
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/orders", map[string]interface{}{
		"customer_name": "Green Bistro",
		"delivery_date": time.Now().AddDate(0, 0, 20).Format(time.RFC3339),
		"items": []map[string]interface{}{
			{"variety_id": "nope", "grams_required": "-5"},
		},
	}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data, ok := resp["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected error details: %s", w.Body.String())
	}
	errs := data["errors"].([]interface{})
	if len(errs) != 2 {
		t.Errorf("Expected 2 collected errors, got %d", len(errs))
	}
}

func TestUnauthorizedRequest(t *testing.T) {
	env, _ := setupOrderTest(t)

	w := testutil.DoRequest(env.Router, "GET", "/api/v1/orders/any", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}
