package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"zahlungsabgleich-backend/internal/logging"
	"zahlungsabgleich-backend/internal/metrics"
	"zahlungsabgleich-backend/internal/models"
	"zahlungsabgleich-backend/internal/receivables"
	"zahlungsabgleich-backend/internal/reconcile"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// fakeGateway implements receivables.Gateway in memory. Recompute failures
// are injected through failRecomputes, counting down per call.
type fakeGateway struct {
	mu             sync.Mutex
	recs           map[string]*models.Receivable
	failRecomputes int
	recomputed     []string
}

func newFakeGateway(recs ...*models.Receivable) *fakeGateway {
	g := &fakeGateway{recs: make(map[string]*models.Receivable)}
	for _, r := range recs {
		g.recs[r.Kind+"/"+r.ID.String()] = r
	}
	return g
}

func (g *fakeGateway) OpenReceivables(ctx context.Context, filter receivables.Filter) ([]models.Receivable, error) {
	var out []models.Receivable
	for _, r := range g.recs {
		if r.Outstanding > 0 {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (g *fakeGateway) ReceivablesByPayer(ctx context.Context, payerID string) ([]models.Receivable, error) {
	var out []models.Receivable
	for _, r := range g.recs {
		if r.PayerID == payerID && r.Outstanding > 0 {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (g *fakeGateway) Receivable(ctx context.Context, kind string, id uuid.UUID) (*models.Receivable, error) {
	r, ok := g.recs[kind+"/"+id.String()]
	if !ok {
		return nil, nil
	}
	copied := *r
	return &copied, nil
}

func (g *fakeGateway) RecomputeBalance(ctx context.Context, kind string, id uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failRecomputes > 0 {
		g.failRecomputes--
		return fmt.Errorf("%w: erp unavailable", reconcile.ErrRecomputeFailed)
	}
	g.recomputed = append(g.recomputed, kind+"/"+id.String())
	if r, ok := g.recs[kind+"/"+id.String()]; ok {
		// The real ERP recomputes paid/open; here an assigned receivable is
		// simply settled in full.
		r.Outstanding = 0
	}
	return nil
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Transaction{}, &models.Assignment{}, &models.AssignmentAudit{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// singleWriter caps the pool at one connection so concurrent goroutines
// contend on real commits instead of tripping over sqlite's file lock.
func singleWriter(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
}

func openTransaction(t *testing.T, db *gorm.DB, amount float64) *models.Transaction {
	t.Helper()
	tx := &models.Transaction{
		ID:           uuid.New(),
		SourceModule: models.SourceBank,
		BookedAt:     time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Amount:       amount,
		Currency:     "EUR",
		Status:       models.StatusOpen,
		CreatedAt:    time.Now(),
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return tx
}

func invoice(amount float64) *models.Receivable {
	return &models.Receivable{
		ID:          uuid.New(),
		Kind:        models.KindInvoice,
		Number:      "RE-2024-00001",
		PayerName:   "Apotheke am Markt",
		Outstanding: amount,
		DueDate:     time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC),
	}
}

func TestAssignThenReverse(t *testing.T) {
	db := testDB(t)
	rec := invoice(149.90)
	gw := newFakeGateway(rec)
	l := New(db, gw, logging.Nop(), metrics.New())
	tx := openTransaction(t, db, 149.90)

	assignmentID, err := l.Assign(context.Background(), tx.ID, rec, models.MethodManual, "tester", 100, nil)
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if assignmentID == uuid.Nil {
		t.Fatal("Assign() returned nil assignment id")
	}
	if len(gw.recomputed) != 1 {
		t.Errorf("recompute calls = %d, want 1", len(gw.recomputed))
	}

	var stored models.Transaction
	db.First(&stored, "id = ?", tx.ID)
	if stored.Status != models.StatusAssigned {
		t.Errorf("status = %q, want assigned", stored.Status)
	}

	if err := l.Reverse(context.Background(), tx.ID, "tester"); err != nil {
		t.Fatalf("Reverse() error = %v", err)
	}
	db.First(&stored, "id = ?", tx.ID)
	if stored.Status != models.StatusOpen {
		t.Errorf("status after reverse = %q, want open", stored.Status)
	}

	var active int64
	db.Model(&models.Assignment{}).Where("transaction_id = ? AND active = ?", tx.ID, true).Count(&active)
	if active != 0 {
		t.Errorf("active assignments after reverse = %d, want 0", active)
	}
	var total int64
	db.Model(&models.Assignment{}).Where("transaction_id = ?", tx.ID).Count(&total)
	if total != 1 {
		t.Errorf("assignment rows = %d, want 1 (soft delete only)", total)
	}

	// Second reversal has nothing left to undo.
	err = l.Reverse(context.Background(), tx.ID, "tester")
	if !errors.Is(err, reconcile.ErrNoActiveAssignment) {
		t.Errorf("second Reverse() error = %v, want ErrNoActiveAssignment", err)
	}
}

func TestAssignTwiceFails(t *testing.T) {
	db := testDB(t)
	rec1 := invoice(80.00)
	rec2 := invoice(80.00)
	gw := newFakeGateway(rec1, rec2)
	l := New(db, gw, logging.Nop(), metrics.New())
	tx := openTransaction(t, db, 80.00)

	if _, err := l.Assign(context.Background(), tx.ID, rec1, models.MethodManual, "tester", 100, nil); err != nil {
		t.Fatalf("first Assign() error = %v", err)
	}

	rec2Copy := *rec2
	_, err := l.Assign(context.Background(), tx.ID, &rec2Copy, models.MethodManual, "tester", 100, nil)
	if !errors.Is(err, reconcile.ErrAlreadyAssigned) {
		t.Errorf("second Assign() error = %v, want ErrAlreadyAssigned", err)
	}

	var active int64
	db.Model(&models.Assignment{}).Where("transaction_id = ? AND active = ?", tx.ID, true).Count(&active)
	if active != 1 {
		t.Errorf("active assignments = %d, want exactly 1", active)
	}
}

func TestAssignClosedReceivable(t *testing.T) {
	db := testDB(t)
	rec := invoice(0)
	gw := newFakeGateway(rec)
	l := New(db, gw, logging.Nop(), metrics.New())
	tx := openTransaction(t, db, 25.00)

	_, err := l.Assign(context.Background(), tx.ID, rec, models.MethodManual, "tester", 100, nil)
	if !errors.Is(err, reconcile.ErrReceivableClosed) {
		t.Fatalf("Assign() error = %v, want ErrReceivableClosed", err)
	}

	var stored models.Transaction
	db.First(&stored, "id = ?", tx.ID)
	if stored.Status != models.StatusOpen {
		t.Errorf("status = %q, transaction must stay open", stored.Status)
	}
}

func TestAssignReceivableAlreadyCovered(t *testing.T) {
	db := testDB(t)
	rec := invoice(60.00)
	gw := newFakeGateway(rec)
	l := New(db, gw, logging.Nop(), metrics.New())
	tx1 := openTransaction(t, db, 60.00)
	tx2 := openTransaction(t, db, 60.00)

	recCopy1 := *rec
	if _, err := l.Assign(context.Background(), tx1.ID, &recCopy1, models.MethodManual, "tester", 100, nil); err != nil {
		t.Fatalf("first Assign() error = %v", err)
	}

	recCopy2 := *rec
	_, err := l.Assign(context.Background(), tx2.ID, &recCopy2, models.MethodManual, "tester", 100, nil)
	if !errors.Is(err, reconcile.ErrReceivableClosed) {
		t.Errorf("Assign() against covered receivable error = %v, want ErrReceivableClosed", err)
	}
}

func TestRecomputeFailureLeavesAssignmentDurable(t *testing.T) {
	db := testDB(t)
	rec := invoice(99.00)
	gw := newFakeGateway(rec)
	gw.failRecomputes = 1
	l := New(db, gw, logging.Nop(), metrics.New())
	tx := openTransaction(t, db, 99.00)

	assignmentID, err := l.Assign(context.Background(), tx.ID, rec, models.MethodAutomatic, "automatch", 92, nil)
	if !errors.Is(err, reconcile.ErrRecomputeFailed) {
		t.Fatalf("Assign() error = %v, want ErrRecomputeFailed", err)
	}
	if assignmentID == uuid.Nil {
		t.Fatal("assignment id must be valid even when recompute fails")
	}

	var stored models.Transaction
	db.First(&stored, "id = ?", tx.ID)
	if stored.Status != models.StatusAssigned {
		t.Errorf("status = %q, must remain assigned during recompute retries", stored.Status)
	}

	// Retry the recompute, not the Assign.
	if err := l.RetryRecompute(context.Background(), tx.ID); err != nil {
		t.Fatalf("RetryRecompute() error = %v", err)
	}
	if len(gw.recomputed) != 1 {
		t.Errorf("successful recompute calls = %d, want exactly 1", len(gw.recomputed))
	}
	if rec.Outstanding != 0 {
		t.Errorf("outstanding after recompute = %v, want 0", rec.Outstanding)
	}
}

func TestIgnore(t *testing.T) {
	db := testDB(t)
	gw := newFakeGateway()
	l := New(db, gw, logging.Nop(), metrics.New())
	tx := openTransaction(t, db, -4.90) // bank fee

	if err := l.Ignore(context.Background(), tx.ID, "tester"); err != nil {
		t.Fatalf("Ignore() error = %v", err)
	}

	var stored models.Transaction
	db.First(&stored, "id = ?", tx.ID)
	if stored.Status != models.StatusIgnored {
		t.Errorf("status = %q, want ignored", stored.Status)
	}

	// Ignoring again is a state-machine violation.
	if err := l.Ignore(context.Background(), tx.ID, "tester"); !errors.Is(err, reconcile.ErrAlreadyAssigned) {
		t.Errorf("second Ignore() error = %v, want ErrAlreadyAssigned", err)
	}
}

func TestRetryRecomputeWithoutAssignment(t *testing.T) {
	db := testDB(t)
	l := New(db, newFakeGateway(), logging.Nop(), metrics.New())
	tx := openTransaction(t, db, 10.00)

	if err := l.RetryRecompute(context.Background(), tx.ID); !errors.Is(err, reconcile.ErrNoActiveAssignment) {
		t.Errorf("RetryRecompute() error = %v, want ErrNoActiveAssignment", err)
	}
}

func TestActiveAssignmentInvariantUnderSequence(t *testing.T) {
	db := testDB(t)
	rec := invoice(120.00)
	gw := newFakeGateway(rec)
	l := New(db, gw, logging.Nop(), metrics.New())
	tx := openTransaction(t, db, 120.00)

	for i := 0; i < 3; i++ {
		recCopy := *rec
		recCopy.Outstanding = 120.00
		if _, err := l.Assign(context.Background(), tx.ID, &recCopy, models.MethodManual, "tester", 100, nil); err != nil {
			t.Fatalf("Assign() round %d error = %v", i, err)
		}
		var active int64
		db.Model(&models.Assignment{}).Where("transaction_id = ? AND active = ?", tx.ID, true).Count(&active)
		if active != 1 {
			t.Fatalf("round %d: active assignments = %d, want 1", i, active)
		}
		if err := l.Reverse(context.Background(), tx.ID, "tester"); err != nil {
			t.Fatalf("Reverse() round %d error = %v", i, err)
		}
	}

	var active int64
	db.Model(&models.Assignment{}).Where("transaction_id = ? AND active = ?", tx.ID, true).Count(&active)
	if active != 0 {
		t.Errorf("active assignments = %d, want 0 after final reverse", active)
	}
	var rows int64
	db.Model(&models.Assignment{}).Where("transaction_id = ?", tx.ID).Count(&rows)
	if rows != 3 {
		t.Errorf("assignment rows = %d, want 3 soft-deleted rounds", rows)
	}
}

func TestConcurrentAssignSameTransaction(t *testing.T) {
	db := testDB(t)
	singleWriter(t, db)
	rec1 := invoice(75.00)
	rec2 := invoice(75.00)
	gw := newFakeGateway(rec1, rec2)
	l := New(db, gw, logging.Nop(), metrics.New())
	tx := openTransaction(t, db, 75.00)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, rec := range []*models.Receivable{rec1, rec2} {
		recCopy := *rec
		wg.Add(1)
		go func(r models.Receivable) {
			defer wg.Done()
			_, err := l.Assign(context.Background(), tx.ID, &r, models.MethodManual, "tester", 100, nil)
			errs <- err
		}(recCopy)
	}
	wg.Wait()
	close(errs)

	var won, lost int
	for err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, reconcile.ErrAlreadyAssigned):
			lost++
		default:
			t.Errorf("unexpected Assign() error = %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Errorf("winners = %d, losers = %d, want exactly 1 and 1", won, lost)
	}

	var active int64
	db.Model(&models.Assignment{}).Where("transaction_id = ? AND active = ?", tx.ID, true).Count(&active)
	if active != 1 {
		t.Errorf("active assignments = %d, want exactly 1", active)
	}
}

func TestConcurrentAssignSameReceivable(t *testing.T) {
	db := testDB(t)
	singleWriter(t, db)
	rec := invoice(200.00)
	gw := newFakeGateway(rec)
	l := New(db, gw, logging.Nop(), metrics.New())
	tx1 := openTransaction(t, db, 200.00)
	tx2 := openTransaction(t, db, 200.00)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, tx := range []*models.Transaction{tx1, tx2} {
		recCopy := *rec
		wg.Add(1)
		go func(txID uuid.UUID, r models.Receivable) {
			defer wg.Done()
			_, err := l.Assign(context.Background(), txID, &r, models.MethodManual, "tester", 100, nil)
			errs <- err
		}(tx.ID, recCopy)
	}
	wg.Wait()
	close(errs)

	var won, lost int
	for err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, reconcile.ErrReceivableClosed):
			lost++
		default:
			t.Errorf("unexpected Assign() error = %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Errorf("winners = %d, losers = %d, want exactly 1 and 1", won, lost)
	}

	// The balance must be counted once: one active assignment on the
	// receivable, and the losing transaction stays open.
	var active int64
	db.Model(&models.Assignment{}).
		Where("receivable_kind = ? AND receivable_id = ? AND active = ?", rec.Kind, rec.ID, true).
		Count(&active)
	if active != 1 {
		t.Errorf("active assignments on receivable = %d, want exactly 1", active)
	}
	var open int64
	db.Model(&models.Transaction{}).Where("status = ?", models.StatusOpen).Count(&open)
	if open != 1 {
		t.Errorf("open transactions = %d, want 1 (the loser reverts)", open)
	}
}
