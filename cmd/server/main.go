package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"hotelops/internal/config"
	"hotelops/internal/handlers"
	"hotelops/internal/middleware"
	"hotelops/internal/models"
	"hotelops/internal/observability"
	"hotelops/internal/scheduler"
	"hotelops/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	// 读取配置文件（默认 ./config.yml）并初始化日志
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()

	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	// OpenTelemetry 初始化（可选）
	shutdownOTel, err := observability.SetupTracing(context.Background(), cfg)
	if err != nil {
		appLogger.Warnf("init tracing: %v", err)
	} else {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	db, err := gorm.Open(postgres.Open(buildDSN(cfg)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		appLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.Monitoring.Tracing.Enabled {
		_ = db.Use(gormtracing.NewPlugin())
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(
		&models.Hotel{}, &models.User{}, &models.HotelMember{}, &models.Room{},
		&models.CleaningDispatch{}, &models.MaintenanceOrder{}, &models.LeaveRequest{},
		&models.OpsTask{}, &models.Notification{},
		&models.Automation{}, &models.AutomationHotelScope{}, &models.AutomationRecipient{},
		&models.AutomationRun{},
	); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}
	if err := models.MigrateAutomationIndexes(db); err != nil {
		appLogger.Fatalf("Failed to create automation indexes: %v", err)
	}

	// 初始化自动化引擎
	recipientService := services.NewRecipientService(db, appLogger)
	var notifier services.Notifier
	if cfg.Notify.Enabled {
		notifier = services.NewQueueNotifier(db, appLogger, cfg.Notify.SubjectPrefix)
	} else {
		notifier = services.NewLogNotifier(appLogger)
	}
	automationService := services.NewAutomationService(
		db, appLogger, services.DefaultCheckRegistry(), recipientService, notifier, cfg.Scheduler)

	if err := automationService.SeedDefaultAutomations(context.Background()); err != nil {
		appLogger.Fatalf("Failed to seed automations: %v", err)
	}

	// 启动巡检调度
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Scheduler.Enabled {
		go scheduler.New(automationService, appLogger, cfg.Scheduler.Interval).Start(ctx)
	}

	// 初始化 Gin
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddlewareWithConfig(cfg))
	r.Use(middleware.RateLimitMiddleware(cfg))
	if cfg.Monitoring.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Monitoring.Tracing.ServiceName))
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)

	if cfg.Monitoring.Enabled {
		r.GET(cfg.Monitoring.MetricsPath, handlers.NewMetricsHandler().GetMetrics)
	}

	api := r.Group("/api")
	handlers.RegisterAutomationRoutes(api, handlers.NewAutomationHandler(automationService))

	listenAddr := fmt.Sprintf("%s:%d", getenvDefault("HOTELOPS_HOST", cfg.Server.Host), serverPort(cfg))
	srv := &http.Server{Addr: listenAddr, Handler: r}
	go func() {
		appLogger.Infof("Starting server on %s", listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatalf("Server forced to shutdown: %v", err)
	}
	appLogger.Info("Server exited")
}

// buildDSN 组装 Postgres DSN，环境变量优先于配置文件
func buildDSN(cfg *config.Config) string {
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		getenvDefault("DB_HOST", cfg.Database.Host),
		getenvDefault("DB_USER", cfg.Database.User),
		getenvDefault("DB_PASSWORD", cfg.Database.Password),
		getenvDefault("DB_NAME", cfg.Database.Name),
		getenvDefault("DB_PORT", strconv.Itoa(cfg.Database.Port)),
		getenvDefault("DB_SSLMODE", cfg.Database.SSLMode),
		getenvDefault("DB_TIMEZONE", cfg.Scheduler.Timezone),
	)
}

func serverPort(cfg *config.Config) int {
	if p := os.Getenv("HOTELOPS_PORT"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			return n
		}
	}
	return cfg.Server.Port
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// corsMiddlewareWithConfig CORS 中间件
func corsMiddlewareWithConfig(cfg *config.Config) gin.HandlerFunc {
	allowedOrigins := "*"
	allowedMethods := "GET, POST, PUT, DELETE, OPTIONS"
	allowedHeaders := "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization"
	if cfg != nil && cfg.Security.CORS.Enabled {
		if len(cfg.Security.CORS.AllowedOrigins) > 0 {
			allowedOrigins = strings.Join(cfg.Security.CORS.AllowedOrigins, ", ")
		}
		if len(cfg.Security.CORS.AllowedMethods) > 0 {
			allowedMethods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
		}
		if len(cfg.Security.CORS.AllowedHeaders) > 0 {
			allowedHeaders = strings.Join(cfg.Security.CORS.AllowedHeaders, ", ")
		}
	}
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", allowedOrigins)
		c.Header("Access-Control-Allow-Methods", allowedMethods)
		c.Header("Access-Control-Allow-Headers", allowedHeaders)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
