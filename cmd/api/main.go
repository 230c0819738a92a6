package main

import (
	_ "backend/api/swagger" // swagger docs
	"backend/internal/config"
	"backend/internal/database"
	"backend/internal/handler"
	"backend/internal/llm"
	"backend/internal/middleware"
	"backend/internal/ocr"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/internal/storage"
	"backend/internal/websocket"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Procurement Approval API
// @version         1.0
// @description     Purchase request workflow with two-level approval, proforma extraction, purchase order generation and receipt tracking.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	envErr := godotenv.Load("configs/.env")

	cfg := config.Load()
	log := newLogger(cfg.Server)
	if envErr != nil {
		log.Debug().Msg("No configs/.env file found, relying on process environment")
	}

	db, err := database.NewConnection(cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	log.Info().Msg("Connected to PostgreSQL successfully")

	store, err := storage.NewLocal(cfg.Media.Root, log)
	if err != nil {
		log.Fatal().Err(err).Str("root", cfg.Media.Root).Msg("Media storage init failed")
	}

	extractor := ocr.NewExtractor(cfg.OCR, log)
	enricher := llm.NewOpenAIEnricher(cfg.LLM, log)
	if !enricher.Enabled() {
		log.Info().Msg("Metadata enrichment disabled, no OPENAI_API_KEY configured")
	}

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(log)
	go wsHub.Run()

	// Set up dependencies (Repository -> Service -> Handler)
	requestRepo := repository.NewRequestRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	txManager := repository.NewTransactionManager(db)

	requestService := service.NewRequestService(service.RequestServiceDeps{
		Requests:       requestRepo,
		Approvals:      approvalRepo,
		Users:          userRepo,
		Audit:          auditRepo,
		Tx:             txManager,
		Store:          store,
		Extractor:      extractor,
		Enricher:       enricher,
		Events:         wsHub,
		MediaURL:       cfg.Media.URLPath,
		FinanceViewAll: cfg.Finance.ViewAll,
		Logger:         log,
	})
	exportService := service.NewExportService(requestRepo, cfg.Finance.ViewAll)
	auditService := service.NewAuditService(auditRepo)
	statisticsService := service.NewStatisticsService(db)

	// Initialize Handlers
	requestHandler := handler.NewRequestHandler(requestService, exportService, log)
	auditHandler := handler.NewAuditHandler(auditService)
	statisticsHandler := handler.NewStatisticsHandler(statisticsService)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Uploaded documents (proformas, purchase orders, receipts)
	router.Static(cfg.Media.URLPath, store.Root())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	// Register API Routes
	requestHandler.RegisterRoutes(router.Group(""))
	auditHandler.RegisterRoutes(router.Group(""))
	statisticsHandler.RegisterRoutes(router.Group(""))

	log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// newLogger builds the root logger from server config. Console format is for
// local development; deployments should run with LOG_FORMAT=json.
func newLogger(cfg config.ServerConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = zerolog.New(os.Stdout)
	if cfg.LogFormat == "console" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return out.Level(level).With().Timestamp().Logger()
}
