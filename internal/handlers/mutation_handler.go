package handler

import (
	"errors"
	"net/http"

	"zahlungsabgleich-backend/internal/models"
	"zahlungsabgleich-backend/internal/reconcile"
	"zahlungsabgleich-backend/internal/services/importer"
	"zahlungsabgleich-backend/internal/services/matching"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Import ingests a batch of provider-normalized records for one source
// module. Malformed records come back in the result; they never abort the
// batch.
func (h *ReconcileHandler) Import(c *gin.Context) {
	source := c.Param("source")

	var payload struct {
		Records []importer.RawRecord `json:"records"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	result, err := h.importer.Import(c.Request.Context(), source, payload.Records)
	if err != nil {
		if errors.Is(err, reconcile.ErrUnknownSource) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// AutoMatch runs a matching pass over open transactions. With auto_assign
// false this is a dry run returning suggestions only.
func (h *ReconcileHandler) AutoMatch(c *gin.Context) {
	var payload struct {
		AutoAssign bool   `json:"auto_assign"`
		Source     string `json:"source"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	result, err := h.engine.AutoMatch(c.Request.Context(),
		matching.Scope{SourceModule: payload.Source},
		matching.Options{AutoAssign: payload.AutoAssign},
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ManualAssign assigns one transaction to a receivable picked by a reviewer.
func (h *ReconcileHandler) ManualAssign(c *gin.Context) {
	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}

	var payload struct {
		Kind         string `json:"kind"`
		ReceivableID string `json:"receivable_id"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if payload.Kind != models.KindInvoice && payload.Kind != models.KindOrder {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be invoice or order"})
		return
	}
	recID, err := uuid.Parse(payload.ReceivableID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receivable ID"})
		return
	}

	rec, err := h.gateway.Receivable(c.Request.Context(), payload.Kind, recID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": reconcile.ErrReceivableNotFound.Error()})
		return
	}

	assignmentID, err := h.ledger.Assign(c.Request.Context(), txID, rec, models.MethodManual, actor(c), 100, nil)
	if err != nil && !errors.Is(err, reconcile.ErrRecomputeFailed) {
		respondLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":           "transaction assigned",
		"assignment_id":     assignmentID,
		"recompute_pending": err != nil,
	})
}

// Ignore marks a transaction as not-a-payment.
func (h *ReconcileHandler) Ignore(c *gin.Context) {
	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}

	if err := h.ledger.Ignore(c.Request.Context(), txID, actor(c)); err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction ignored"})
}

// Reverse undoes the active assignment of a transaction.
func (h *ReconcileHandler) Reverse(c *gin.Context) {
	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}

	err = h.ledger.Reverse(c.Request.Context(), txID, actor(c))
	if err != nil && !errors.Is(err, reconcile.ErrRecomputeFailed) {
		respondLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":           "assignment reversed",
		"recompute_pending": err != nil,
	})
}

// RetryRecompute re-runs the ERP balance recompute after a transient
// failure.
func (h *ReconcileHandler) RetryRecompute(c *gin.Context) {
	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}

	if err := h.ledger.RetryRecompute(c.Request.Context(), txID); err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "balance recomputed"})
}

func respondLedgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, reconcile.ErrTransactionNotFound),
		errors.Is(err, reconcile.ErrReceivableNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case reconcile.IsConflict(err), errors.Is(err, reconcile.ErrReceivableClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case reconcile.IsRetryable(err):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
