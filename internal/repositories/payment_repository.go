package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/umit144/license-sync/internal/models"
	"github.com/umit144/license-sync/internal/ports"
)

const mysqlDuplicateEntry = 1062

var paymentColumns = []string{
	"id", "payment_id", "subscription_id", "amount", "currency", "status",
	"provider", "metadata", "created_at", "updated_at",
}

type PaymentRepository struct {
	db querier
}

func NewPaymentRepository(db querier) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) insert(p *models.Payment) sq.InsertBuilder {
	return sq.Insert("payments").
		Columns(paymentColumns...).
		Values(p.ID, p.PaymentID, p.SubscriptionID, p.Amount, p.Currency, p.Status,
			p.Provider, p.Metadata, p.CreatedAt, p.UpdatedAt).
		PlaceholderFormat(sq.Question)
}

// Insert relies on the unique payment_id index for idempotency.
func (r *PaymentRepository) Insert(ctx context.Context, p *models.Payment) error {
	sql, args, err := r.insert(p).ToSql()
	if err != nil {
		return fmt.Errorf("query build failed: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, sql, args...); err != nil {
		if isDuplicate(err) {
			return ports.ErrDuplicatePayment
		}
		return fmt.Errorf("insert failed: %w", err)
	}

	return nil
}

func (r *PaymentRepository) Upsert(ctx context.Context, p *models.Payment) error {
	query := r.insert(p).
		Suffix("ON DUPLICATE KEY UPDATE amount = VALUES(amount), currency = VALUES(currency), " +
			"provider = VALUES(provider), metadata = VALUES(metadata), updated_at = VALUES(updated_at)")

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("query build failed: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert failed: %w", err)
	}

	return nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, paymentID string, status models.PaymentStatus, now time.Time) (bool, error) {
	query := sq.Update("payments").
		Set("status", status).
		Set("updated_at", now).
		Where(sq.Eq{"payment_id": paymentID}).
		PlaceholderFormat(sq.Question)

	sql, args, err := query.ToSql()
	if err != nil {
		return false, fmt.Errorf("query build failed: %w", err)
	}

	res, err := r.db.ExecContext(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("update failed: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return n > 0, nil
}

func (r *PaymentRepository) LinkSubscription(ctx context.Context, paymentID, subscriptionID string, now time.Time) error {
	query := sq.Update("payments").
		Set("subscription_id", subscriptionID).
		Set("updated_at", now).
		Where(sq.Eq{"payment_id": paymentID}).
		PlaceholderFormat(sq.Question)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("query build failed: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, sql, args...); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}

	return nil
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
