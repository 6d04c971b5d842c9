package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bitfantasy/sprout/internal/config"
	"github.com/bitfantasy/sprout/internal/greens/entity"
	"github.com/bitfantasy/sprout/internal/greens/events"
	"github.com/bitfantasy/sprout/internal/greens/handler"
	"github.com/bitfantasy/sprout/internal/greens/repository"
	"github.com/bitfantasy/sprout/internal/greens/service"
	"github.com/bitfantasy/sprout/internal/middleware"
	"github.com/bitfantasy/sprout/internal/scheduler"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting sprout service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// 数据库迁移
	if err := db.AutoMigrate(
		&entity.Variety{},
		&entity.Order{},
		&entity.OrderItem{},
		&entity.ProductionPlan{},
		&entity.PlanContributor{},
		&entity.GrowingBatch{},
		&entity.GrowingUnit{},
		&entity.CropLog{},
		&entity.HarvestRecord{},
		&entity.HarvestLine{},
	); err != nil {
		zapLogger.Warn("AutoMigrate warning", zap.Error(err))
	}

	migrationSQL := []string{
		// 同品种同收获日只允许一个在产计划；并发创建靠它仲裁
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_live_plan
			ON production_plans(variety_id, harvest_date)
			WHERE status IN ('draft', 'active')`,
		`CREATE SEQUENCE IF NOT EXISTS order_code_seq START 1`,
		`CREATE SEQUENCE IF NOT EXISTS tray_number_seq START 1`,
		`CREATE INDEX IF NOT EXISTS idx_plan_contributors_item
			ON plan_contributors(order_item_id) WHERE status = 'active'`,
		`CREATE INDEX IF NOT EXISTS idx_growing_units_live
			ON growing_units(current_stage)
			WHERE current_stage NOT IN ('harvested', 'cancelled')`,
	}
	for _, sql := range migrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			zapLogger.Warn("Migration warning", zap.String("sql", sql), zap.Error(err))
		}
	}
	zapLogger.Info("Database migration completed")

	// 初始化Redis
	rdb := initRedis(cfg.Redis)

	// 仓库、事件总线与服务
	repos := repository.NewRepositories(db)
	bus := events.NewBus(rdb, zapLogger)
	services := service.NewServices(db, repos, bus, zapLogger,
		cfg.Planning.HarvestOffsetDays, cfg.Planning.MinLeadDays)
	handlers := handler.NewHandlers(services)

	// 定时巡检
	sched, err := scheduler.New(services.Growing, cfg.Planning.ScanIntervalMins, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to init scheduler", zap.Error(err))
	}
	sched.Start()

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// 注册路由
	registerRoutes(router, handlers, cfg)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // Disable for SSE long-lived connections
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
		// 让唯一索引冲突映射为 gorm.ErrDuplicatedKey，排产并发仲裁依赖它
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": Version})
	})

	api := r.Group("/api/v1")
	api.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		// 品种
		varieties := api.Group("/varieties")
		{
			varieties.GET("", h.Variety.List)
			varieties.POST("", h.Variety.Create)
			varieties.GET("/:id", h.Variety.Get)
			varieties.PUT("/:id", h.Variety.Update)
		}

		// 订单
		orders := api.Group("/orders")
		{
			orders.GET("", h.Order.List)
			orders.POST("", h.Order.Create)
			orders.GET("/:id", h.Order.Get)
			orders.PUT("/:id", h.Order.Update)
			orders.POST("/:id/cancel", h.Order.Cancel)
			orders.POST("/:id/plans", h.Order.GeneratePlans)
			orders.PUT("/:id/plans", h.Order.UpdatePlans)
			orders.GET("/:id/plans", h.Order.ListPlans)
		}

		// 生产计划
		plans := api.Group("/plans")
		{
			plans.GET("", h.Plan.List)
			plans.GET("/:id", h.Plan.Get)
			plans.GET("/:id/contributors", h.Plan.Contributors)
			plans.POST("/:id/approve", h.Plan.Approve)
			plans.POST("/:id/start", h.Plan.Start)
			plans.POST("/:id/cancel", h.Plan.Cancel)
		}

		// 托盘生命周期
		crops := api.Group("/crops")
		{
			crops.GET("", h.Growing.List)
			crops.POST("/advance", h.Growing.AdvanceBulk)
			crops.POST("/watering", h.Growing.SetWateringBulk)
			crops.GET("/:id", h.Growing.Get)
			crops.GET("/:id/logs", h.Growing.Logs)
			crops.POST("/:id/advance", h.Growing.Advance)
			crops.PUT("/:id/stage-time", h.Growing.EditStageTime)
			crops.POST("/:id/ready", h.Growing.FlagReady)
			crops.POST("/:id/watering", h.Growing.ToggleWatering)
			crops.POST("/:id/cancel", h.Growing.Cancel)
		}

		// 批次
		api.GET("/batches/:id", h.Growing.GetBatch)

		// 收获
		harvests := api.Group("/harvests")
		{
			harvests.GET("", h.Harvest.List)
			harvests.POST("", h.Harvest.Submit)
			harvests.GET("/:id", h.Harvest.Get)
			harvests.PUT("/:id", h.Harvest.Update)
		}

		// SSE
		api.GET("/sse/events", h.SSE.Stream)
	}
}
