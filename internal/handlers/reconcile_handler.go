package handler

import (
	"net/http"

	"zahlungsabgleich-backend/internal/logging"
	"zahlungsabgleich-backend/internal/models"
	"zahlungsabgleich-backend/internal/receivables"
	"zahlungsabgleich-backend/internal/repository"
	"zahlungsabgleich-backend/internal/services/importer"
	"zahlungsabgleich-backend/internal/services/ledger"
	"zahlungsabgleich-backend/internal/services/matching"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ReconcileHandler struct {
	importer   *importer.Importer
	engine     *matching.Engine
	ledger     *ledger.Ledger
	gateway    receivables.Gateway
	txRepo     *repository.TransactionRepository
	assignRepo *repository.AssignmentRepository
	logger     *logging.Logger
}

func NewReconcileHandler(
	imp *importer.Importer,
	engine *matching.Engine,
	ldg *ledger.Ledger,
	gateway receivables.Gateway,
	txRepo *repository.TransactionRepository,
	assignRepo *repository.AssignmentRepository,
	logger *logging.Logger,
) *ReconcileHandler {
	return &ReconcileHandler{
		importer:   imp,
		engine:     engine,
		ledger:     ldg,
		gateway:    gateway,
		txRepo:     txRepo,
		assignRepo: assignRepo,
		logger:     logger,
	}
}

// actor resolves the reviewing user from the request. The desktop console
// sets the header; absent means an unattended batch caller.
func actor(c *gin.Context) string {
	if a := c.GetHeader("X-Actor-ID"); a != "" {
		return a
	}
	return "system"
}

// ListOpenTransactions returns transactions awaiting reconciliation,
// optionally filtered by source module.
func (h *ReconcileHandler) ListOpenTransactions(c *gin.Context) {
	txs, err := h.txRepo.ListByStatus(models.StatusOpen, c.Query("source"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": txs})
}

// ListAssignedTransactions returns assigned transactions together with their
// active assignment and the linked receivable.
func (h *ReconcileHandler) ListAssignedTransactions(c *gin.Context) {
	txs, err := h.txRepo.ListByStatus(models.StatusAssigned, c.Query("source"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	type assignedItem struct {
		Transaction models.Transaction `json:"transaction"`
		Assignment  *models.Assignment `json:"assignment"`
		Receivable  *models.Receivable `json:"receivable"`
		// ReceivableUnavailable marks rows whose ERP lookup failed; the
		// assignment itself is intact and the console can retry.
		ReceivableUnavailable bool `json:"receivable_unavailable,omitempty"`
	}

	items := make([]assignedItem, 0, len(txs))
	for _, tx := range txs {
		item := assignedItem{Transaction: tx}
		a, err := h.assignRepo.ActiveByTransaction(tx.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if a != nil {
			item.Assignment = a
			rec, err := h.gateway.Receivable(c.Request.Context(), a.ReceivableKind, a.ReceivableID)
			if err != nil {
				item.ReceivableUnavailable = true
				h.logger.Warn("receivable lookup failed",
					zap.String("transaction_id", tx.ID.String()),
					zap.String("receivable", a.ReceivableKind+"/"+a.ReceivableID.String()),
					zap.Error(err),
				)
			} else {
				item.Receivable = rec
			}
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// ListOpenReceivables returns open receivables eligible for manual matching,
// optionally restricted to one payer.
func (h *ReconcileHandler) ListOpenReceivables(c *gin.Context) {
	var (
		recs []models.Receivable
		err  error
	)
	if payer := c.Query("payer"); payer != "" {
		recs, err = h.gateway.ReceivablesByPayer(c.Request.Context(), payer)
	} else {
		recs, err = h.gateway.OpenReceivables(c.Request.Context(), receivables.Filter{})
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": recs})
}

// ListSuggestions runs the matching engine in dry-run mode and returns the
// current suggestion list. Suggestions are regenerated per request, never
// stored.
func (h *ReconcileHandler) ListSuggestions(c *gin.Context) {
	result, err := h.engine.AutoMatch(c.Request.Context(),
		matching.Scope{SourceModule: c.Query("source")},
		matching.Options{AutoAssign: false},
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": result.Suggested})
}

// GetStats returns counts and sums of open/assigned/ignored amounts.
func (h *ReconcileHandler) GetStats(c *gin.Context) {
	stats, err := h.txRepo.GetStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
