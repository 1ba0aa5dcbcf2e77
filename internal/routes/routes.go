package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	handler "zahlungsabgleich-backend/internal/handlers"
	"zahlungsabgleich-backend/internal/logging"
	"zahlungsabgleich-backend/internal/metrics"
	"zahlungsabgleich-backend/internal/receivables"
	"zahlungsabgleich-backend/internal/repository"
	"zahlungsabgleich-backend/internal/services/importer"
	"zahlungsabgleich-backend/internal/services/ledger"
	"zahlungsabgleich-backend/internal/services/matching"
)

func RegisterRoutes(r *gin.Engine, db *gorm.DB, gateway receivables.Gateway, logger *logging.Logger, meter *metrics.Metrics, matchCfg matching.Config) {
	txRepo := repository.NewTransactionRepository(db)
	assignRepo := repository.NewAssignmentRepository(db)

	imp := importer.New(db, txRepo, logger.Named("importer"), meter)
	ldg := ledger.New(db, gateway, logger.Named("ledger"), meter)
	engine := matching.NewEngine(matchCfg, gateway, txRepo, ldg, logger.Named("matching"))

	h := handler.NewReconcileHandler(imp, engine, ldg, gateway, txRepo, assignRepo, logger.Named("api"))

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Feed import
	api.POST("/import/:source", h.Import)

	// Queries
	api.GET("/transactions/open", h.ListOpenTransactions)
	api.GET("/transactions/assigned", h.ListAssignedTransactions)
	api.GET("/receivables/open", h.ListOpenReceivables)
	api.GET("/suggestions", h.ListSuggestions)
	api.GET("/stats", h.GetStats)

	// Matching
	api.POST("/automatch", h.AutoMatch)

	// Transaction-level mutations
	tx := api.Group("/transactions")
	tx.POST("/:id/assign", h.ManualAssign)
	tx.POST("/:id/ignore", h.Ignore)
	tx.POST("/:id/reverse", h.Reverse)
	tx.POST("/:id/recompute", h.RetryRecompute)

	// Prometheus scrape endpoint
	r.GET("/metrics", gin.WrapH(meter.Handler()))
}
