// Package matching scores open transactions against open receivables and
// decides auto-assign versus suggest-only.
package matching

import (
	"context"
	"errors"
	"fmt"

	"zahlungsabgleich-backend/internal/logging"
	"zahlungsabgleich-backend/internal/models"
	"zahlungsabgleich-backend/internal/receivables"
	"zahlungsabgleich-backend/internal/reconcile"
	"zahlungsabgleich-backend/internal/repository"
	"zahlungsabgleich-backend/internal/services/ledger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Engine struct {
	cfg     Config
	gateway receivables.Gateway
	txRepo  *repository.TransactionRepository
	ledger  *ledger.Ledger
	logger  *logging.Logger
}

func NewEngine(cfg Config, gateway receivables.Gateway, txRepo *repository.TransactionRepository, ledger *ledger.Ledger, logger *logging.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		gateway: gateway,
		txRepo:  txRepo,
		ledger:  ledger,
		logger:  logger,
	}
}

// Scope narrows an AutoMatch run.
type Scope struct {
	// SourceModule restricts to transactions from one feed; empty means all.
	SourceModule string
}

// Options control an AutoMatch run.
type Options struct {
	// AutoAssign commits high-confidence matches. False is the dry-run mode
	// used by the review UI to list suggestions.
	AutoAssign bool
}

type AssignedMatch struct {
	TransactionID uuid.UUID         `json:"transaction_id"`
	Receivable    models.Receivable `json:"receivable"`
	Score         float64           `json:"score"`
	AssignmentID  uuid.UUID         `json:"assignment_id"`
	// RecomputePending is set when the assignment committed but the ERP
	// balance recompute still needs a retry.
	RecomputePending bool `json:"recompute_pending"`
}

type Suggestion struct {
	TransactionID uuid.UUID          `json:"transaction_id"`
	Transaction   models.Transaction `json:"transaction"`
	Candidates    []ScoredCandidate  `json:"candidates"`
}

type AutoMatchResult struct {
	Assigned  []AssignedMatch `json:"assigned"`
	Suggested []Suggestion    `json:"suggested"`
}

// AutoMatch scores all open transactions in scope and either assigns
// unambiguous high-confidence matches or returns them as suggestions.
// Scoring runs in parallel; the assignment phase is serial and every write
// is re-checked by the ledger, so concurrent runs never double-assign.
func (e *Engine) AutoMatch(ctx context.Context, scope Scope, opts Options) (*AutoMatchResult, error) {
	txs, err := e.txRepo.ListByStatus(models.StatusOpen, scope.SourceModule)
	if err != nil {
		return nil, fmt.Errorf("matching: list open transactions: %w", err)
	}

	result := &AutoMatchResult{}
	if len(txs) == 0 {
		return result, nil
	}

	open, err := e.gateway.OpenReceivables(ctx, receivables.Filter{})
	if err != nil {
		return nil, fmt.Errorf("matching: fetch open receivables: %w", err)
	}

	// Read/score phase, embarrassingly parallel.
	scored := make([][]ScoredCandidate, len(txs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.BatchWorkers)
	for i := range txs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scored[i] = e.Score(&txs[i], open)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Assignment phase, serial. Receivables taken earlier in this run are
	// excluded from later auto-assignments.
	taken := make(map[string]bool)
	for i := range txs {
		if err := ctx.Err(); err != nil {
			// Operator abort: everything committed so far stays.
			return result, err
		}

		candidates := scored[i]
		if len(candidates) == 0 || candidates[0].Score < e.cfg.SuggestionFloor {
			continue
		}

		atThreshold := 0
		for _, c := range candidates {
			if c.Score >= e.cfg.AutoAssignThreshold && !taken[receivableKey(c.Receivable)] {
				atThreshold++
			}
		}

		if opts.AutoAssign && atThreshold == 1 {
			top := topEligible(candidates, e.cfg.AutoAssignThreshold, taken)
			assignmentID, err := e.ledger.Assign(ctx, txs[i].ID, &top.Receivable, models.MethodAutomatic, "automatch", top.Score, map[string]interface{}{
				"score":           top.Score,
				"reasons":         top.Reasons,
				"candidate_count": len(candidates),
			})
			switch {
			case err == nil:
				taken[receivableKey(top.Receivable)] = true
				result.Assigned = append(result.Assigned, AssignedMatch{
					TransactionID: txs[i].ID,
					Receivable:    top.Receivable,
					Score:         top.Score,
					AssignmentID:  assignmentID,
				})
				continue
			case errors.Is(err, reconcile.ErrRecomputeFailed):
				taken[receivableKey(top.Receivable)] = true
				result.Assigned = append(result.Assigned, AssignedMatch{
					TransactionID:    txs[i].ID,
					Receivable:       top.Receivable,
					Score:            top.Score,
					AssignmentID:     assignmentID,
					RecomputePending: true,
				})
				continue
			case reconcile.IsConflict(err) || errors.Is(err, reconcile.ErrReceivableClosed):
				// Lost a race against a concurrent run or a manual assign.
				e.logger.Warn("auto-assign skipped",
					zap.String("transaction_id", txs[i].ID.String()),
					zap.Error(err),
				)
				continue
			default:
				return result, err
			}
		}

		// Ambiguous or below threshold: surface everything above the floor.
		var above []ScoredCandidate
		for _, c := range candidates {
			if c.Score >= e.cfg.SuggestionFloor {
				above = append(above, c)
			}
		}
		result.Suggested = append(result.Suggested, Suggestion{
			TransactionID: txs[i].ID,
			Transaction:   txs[i],
			Candidates:    above,
		})
	}

	e.logger.Info("automatch completed",
		zap.Int("open_transactions", len(txs)),
		zap.Int("assigned", len(result.Assigned)),
		zap.Int("suggested", len(result.Suggested)),
		zap.Bool("auto_assign", opts.AutoAssign),
	)
	return result, nil
}

func topEligible(candidates []ScoredCandidate, threshold float64, taken map[string]bool) ScoredCandidate {
	for _, c := range candidates {
		if c.Score >= threshold && !taken[receivableKey(c.Receivable)] {
			return c
		}
	}
	return candidates[0]
}

func receivableKey(rec models.Receivable) string {
	return rec.Kind + "/" + rec.ID.String()
}
