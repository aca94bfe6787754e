package txn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/pos-engine/internal/cart"
	"github.com/noah-isme/pos-engine/internal/payment"
	"github.com/noah-isme/pos-engine/internal/pricing"
)

// ErrDuplicateNumber indicates a transaction number collision; the caller may
// retry with a fresh number.
var ErrDuplicateNumber = errors.New("txn: duplicate transaction number")

// Submission is the immutable snapshot of a finished checkout session.
type Submission struct {
	SessionID     uuid.UUID
	CashierID     uuid.UUID
	MemberID      *uuid.UUID
	Lines         []cart.Line
	Subtotal      pricing.Money
	PromoCode     string
	PromoDiscount pricing.Money
	PointsUsed    int64
	PointDiscount pricing.Money
	Total         pricing.Money
	Payments      []payment.Line
	Change        pricing.Money
}

// Record identifies a persisted transaction.
type Record struct {
	ID          uuid.UUID `json:"id"`
	Number      string    `json:"number"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Store persists submitted transactions.
type Store struct {
	Pool *pgxpool.Pool
	Now  func() time.Time
}

const (
	insertTransactionSQL = `
INSERT INTO transactions (
	id, number, session_id, cashier_id, member_id,
	subtotal, promo_code, promo_discount, points_used, point_discount,
	total, change, submitted_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`
	insertLineSQL = `
INSERT INTO transaction_lines (
	id, transaction_id, product_id, name, pricing_mode,
	unit_price, qty, mass_grams, subtotal
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
	insertPaymentSQL = `
INSERT INTO transaction_payments (
	id, transaction_id, instrument, amount, reference
) VALUES ($1,$2,$3,$4,$5)
`
)

// Submit writes the transaction header, lines and payments atomically and
// returns the persisted record. A transaction number collision retries once
// with a fresh number before giving up.
func (s *Store) Submit(ctx context.Context, sub Submission) (Record, error) {
	if s == nil || s.Pool == nil {
		return Record{}, errors.New("txn: store not configured")
	}
	record, err := s.submitOnce(ctx, sub)
	if errors.Is(err, ErrDuplicateNumber) {
		record, err = s.submitOnce(ctx, sub)
	}
	return record, err
}

func (s *Store) submitOnce(ctx context.Context, sub Submission) (Record, error) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	record := Record{
		ID:          uuid.New(),
		Number:      newNumber(now),
		SubmittedAt: now,
	}

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Record{}, fmt.Errorf("txn: begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var memberID any
	if sub.MemberID != nil {
		memberID = *sub.MemberID
	}
	_, err = tx.Exec(ctx, insertTransactionSQL,
		record.ID, record.Number, sub.SessionID, sub.CashierID, memberID,
		sub.Subtotal, nullable(sub.PromoCode), sub.PromoDiscount,
		sub.PointsUsed, sub.PointDiscount, sub.Total, sub.Change,
		record.SubmittedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Record{}, ErrDuplicateNumber
		}
		return Record{}, fmt.Errorf("txn: insert transaction: %w", err)
	}

	for _, line := range sub.Lines {
		_, err = tx.Exec(ctx, insertLineSQL,
			uuid.New(), record.ID, line.ProductID, line.Name, string(line.Mode),
			line.UnitPrice, line.Qty, line.MassGrams, line.Subtotal())
		if err != nil {
			return Record{}, fmt.Errorf("txn: insert line: %w", err)
		}
	}
	for _, pay := range sub.Payments {
		_, err = tx.Exec(ctx, insertPaymentSQL,
			pay.ID, record.ID, string(pay.Instrument), pay.Amount, nullable(pay.Reference))
		if err != nil {
			return Record{}, fmt.Errorf("txn: insert payment: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("txn: commit: %w", err)
	}
	return record, nil
}

func newNumber(now time.Time) string {
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return "POS-" + now.Format("20060102") + "-" + suffix
}

func nullable(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
