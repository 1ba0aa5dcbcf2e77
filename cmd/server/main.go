package main

import (
	"log"
	"time"

	"zahlungsabgleich-backend/internal/config"
	"zahlungsabgleich-backend/internal/logging"
	"zahlungsabgleich-backend/internal/metrics"
	"zahlungsabgleich-backend/internal/models"
	"zahlungsabgleich-backend/internal/receivables"
	"zahlungsabgleich-backend/internal/routes"
	"zahlungsabgleich-backend/internal/services/matching"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logCfg := logging.DefaultConfig()
	if cfg.LogLevel != "" {
		logCfg.Level = cfg.LogLevel
	}
	if cfg.LogFormat != "" {
		logCfg.Format = cfg.LogFormat
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	db, err := config.InitDB(cfg)
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}

	if err := db.AutoMigrate(
		&models.Transaction{},
		&models.Assignment{},
		&models.AssignmentAudit{},
		&models.ImportBatch{},
	); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	clientCfg := receivables.DefaultClientConfig()
	clientCfg.Timeout = cfg.GatewayTimeout
	clientCfg.CacheTTL = cfg.ReceivableCacheTTL
	gateway := receivables.NewClient(
		receivables.NewERPGateway(db),
		clientCfg,
		logger.Named("receivables"),
	)

	matchCfg := matching.DefaultConfig()
	if cfg.MatchAutoAssignThreshold > 0 {
		matchCfg.AutoAssignThreshold = cfg.MatchAutoAssignThreshold
	}
	if cfg.MatchSuggestionFloor > 0 {
		matchCfg.SuggestionFloor = cfg.MatchSuggestionFloor
	}
	if cfg.MatchAmountToleranceCents > 0 {
		matchCfg.AmountToleranceCents = cfg.MatchAmountToleranceCents
	}
	if cfg.MatchBatchWorkers > 0 {
		matchCfg.BatchWorkers = cfg.MatchBatchWorkers
	}

	meter := metrics.New()

	r := gin.Default()
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-Actor-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, db, gateway, logger, meter, matchCfg)

	logger.Info("listening", zap.String("addr", cfg.ListenAddr))
	if err := r.Run(cfg.ListenAddr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
