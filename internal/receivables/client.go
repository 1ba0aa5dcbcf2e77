package receivables

import (
	"context"
	"fmt"
	"time"

	"zahlungsabgleich-backend/internal/logging"
	"zahlungsabgleich-backend/internal/models"
	"zahlungsabgleich-backend/internal/reconcile"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ClientConfig tunes the resilient gateway wrapper.
type ClientConfig struct {
	// Timeout bounds every gateway call.
	Timeout time.Duration
	// CacheTTL bounds how long open-receivable reads are served from cache.
	// Zero disables caching.
	CacheTTL time.Duration
	// BreakerFailures is the consecutive-failure count that opens the
	// recompute circuit.
	BreakerFailures uint32
	// BreakerCooldown is how long the circuit stays open before probing.
	BreakerCooldown time.Duration
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:         5 * time.Second,
		CacheTTL:        30 * time.Second,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// Client wraps an inner Gateway with per-call timeouts, a circuit breaker on
// the recompute path and a short-TTL read cache for open-receivable and
// single-receivable reads. The cache is flushed whenever a recompute is
// attempted so reads never serve a balance the ERP has since rewritten.
type Client struct {
	inner   Gateway
	cfg     ClientConfig
	cache   *gocache.Cache
	breaker *gobreaker.CircuitBreaker
	logger  *logging.Logger
}

func NewClient(inner Gateway, cfg ClientConfig, logger *logging.Logger) *Client {
	c := &Client{
		inner:  inner,
		cfg:    cfg,
		logger: logger,
	}
	if cfg.CacheTTL > 0 {
		c.cache = gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "erp-recompute",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

func (c *Client) OpenReceivables(ctx context.Context, filter Filter) ([]models.Receivable, error) {
	key := cacheKey("open", filter)
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			return v.([]models.Receivable), nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	rows, err := c.inner.OpenReceivables(ctx, filter)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.SetDefault(key, rows)
	}
	return rows, nil
}

func (c *Client) ReceivablesByPayer(ctx context.Context, payerID string) ([]models.Receivable, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	return c.inner.ReceivablesByPayer(ctx, payerID)
}

// Receivable serves single lookups from the same short-TTL cache as
// OpenReceivables; the review console requests one receivable per assigned
// row, which would otherwise hit the ERP once per row.
func (c *Client) Receivable(ctx context.Context, kind string, id uuid.UUID) (*models.Receivable, error) {
	key := "one:" + kind + "/" + id.String()
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			return v.(*models.Receivable), nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	rec, err := c.inner.Receivable(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if c.cache != nil && rec != nil {
		c.cache.SetDefault(key, rec)
	}
	return rec, nil
}

// RecomputeBalance invokes the ERP recompute through the circuit breaker.
// Any failure (including an open circuit or a timeout) is reported as
// reconcile.ErrRecomputeFailed so callers can treat it as retryable.
func (c *Client) RecomputeBalance(ctx context.Context, kind string, id uuid.UUID) error {
	if c.cache != nil {
		c.cache.Flush()
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
		return nil, c.inner.RecomputeBalance(callCtx, kind, id)
	})
	if err != nil {
		c.logger.Error("balance recompute failed",
			zap.String("kind", kind),
			zap.String("receivable_id", id.String()),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", reconcile.ErrRecomputeFailed, err)
	}
	return nil
}

func cacheKey(prefix string, filter Filter) string {
	key := prefix
	for _, k := range filter.Kinds {
		key += ":" + k
	}
	if filter.PayerID != "" {
		key += ":payer=" + filter.PayerID
	}
	return key
}
