package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/blockloop/scan/v2"
	"github.com/umit144/license-sync/internal/models"
	"github.com/umit144/license-sync/internal/ports"
)

var subscriptionColumns = []string{
	"id", "email", "license_key", "device_fingerprint", "status", "plan",
	"expires_at", "last_checked", "payment_id", "created_at", "updated_at",
}

type SubscriptionRepository struct {
	db querier
}

func NewSubscriptionRepository(db querier) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) FindByCredentials(ctx context.Context, email, licenseKey string) (*models.Subscription, error) {
	return r.findOne(ctx, sq.Eq{"email": email, "license_key": licenseKey})
}

func (r *SubscriptionRepository) FindByPaymentID(ctx context.Context, paymentID string) (*models.Subscription, error) {
	return r.findOne(ctx, sq.Eq{"payment_id": paymentID})
}

func (r *SubscriptionRepository) LockByEmail(ctx context.Context, email string) (*models.Subscription, error) {
	query := sq.Select(subscriptionColumns...).
		From("subscriptions").
		Where(sq.Eq{"email": email}).
		Suffix("FOR UPDATE").
		PlaceholderFormat(sq.Question)

	return r.scanOne(ctx, query)
}

func (r *SubscriptionRepository) findOne(ctx context.Context, where sq.Eq) (*models.Subscription, error) {
	query := sq.Select(subscriptionColumns...).
		From("subscriptions").
		Where(where).
		Limit(1).
		PlaceholderFormat(sq.Question)

	return r.scanOne(ctx, query)
}

func (r *SubscriptionRepository) scanOne(ctx context.Context, query sq.SelectBuilder) (*models.Subscription, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("query build failed: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var sub models.Subscription
	if err := scan.Row(&sub, rows); err != nil {
		if isNoRows(err) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	return &sub, nil
}

func (r *SubscriptionRepository) ListExpiring(ctx context.Context, q ports.ExpiryQuery) ([]models.Subscription, error) {
	query := sq.Select(subscriptionColumns...).
		From("subscriptions").
		Where(sq.Eq{"status": models.StatusActive}).
		Where(sq.GtOrEq{"expires_at": q.From}).
		Where(sq.Lt{"expires_at": q.Before})

	if q.AfterID != "" {
		query = query.Where(sq.Or{
			sq.Gt{"expires_at": q.AfterExpiry},
			sq.And{sq.Eq{"expires_at": q.AfterExpiry}, sq.Gt{"id": q.AfterID}},
		})
	}

	query = query.
		OrderBy("expires_at ASC", "id ASC").
		Limit(uint64(q.Limit)).
		PlaceholderFormat(sq.Question)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("query build failed: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var subscriptions []models.Subscription
	if err := scan.Rows(&subscriptions, rows); err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	return subscriptions, nil
}

func (r *SubscriptionRepository) Create(ctx context.Context, s *models.Subscription) error {
	query := sq.Insert("subscriptions").
		Columns(subscriptionColumns...).
		Values(s.ID, s.Email, s.LicenseKey, s.DeviceFingerprint, s.Status, s.Plan,
			s.ExpiresAt, s.LastChecked, s.PaymentID, s.CreatedAt, s.UpdatedAt).
		PlaceholderFormat(sq.Question)

	return r.exec(ctx, query, "insert")
}

// Renew writes the renewal outcome computed by the caller.
func (r *SubscriptionRepository) Renew(ctx context.Context, s *models.Subscription) error {
	query := sq.Update("subscriptions").
		Set("status", s.Status).
		Set("plan", s.Plan).
		Set("expires_at", s.ExpiresAt).
		Set("payment_id", s.PaymentID).
		Set("updated_at", s.UpdatedAt).
		Where(sq.Eq{"id": s.ID}).
		PlaceholderFormat(sq.Question)

	return r.exec(ctx, query, "update")
}

// BindDevice performs a conditional update: the fingerprint is written only
// while the column is still NULL, so concurrent first verifications resolve
// to exactly one binding. The current binding is read back in the same
// transaction.
func (r *SubscriptionRepository) BindDevice(ctx context.Context, id, fingerprint string, now time.Time) (string, error) {
	update := sq.Update("subscriptions").
		Set("device_fingerprint", fingerprint).
		Set("updated_at", now).
		Where(sq.Eq{"id": id, "device_fingerprint": nil}).
		PlaceholderFormat(sq.Question)

	if err := r.exec(ctx, update, "bind device"); err != nil {
		return "", err
	}

	query := sq.Select("device_fingerprint").
		From("subscriptions").
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Question)

	stmt, args, err := query.ToSql()
	if err != nil {
		return "", fmt.Errorf("query build failed: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", fmt.Errorf("rows iteration failed: %w", err)
		}
		return "", ports.ErrNotFound
	}

	var bound sql.NullString
	if err := rows.Scan(&bound); err != nil {
		return "", fmt.Errorf("scan failed: %w", err)
	}

	return bound.String, nil
}

func (r *SubscriptionRepository) TouchLastChecked(ctx context.Context, id string, now time.Time) error {
	query := sq.Update("subscriptions").
		Set("last_checked", now).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Question)

	return r.exec(ctx, query, "update")
}

func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, id string, status models.SubscriptionStatus, now time.Time) error {
	query := sq.Update("subscriptions").
		Set("status", status).
		Set("updated_at", now).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Question)

	return r.exec(ctx, query, "update")
}

func (r *SubscriptionRepository) ClearDevice(ctx context.Context, id string, now time.Time) error {
	query := sq.Update("subscriptions").
		Set("device_fingerprint", nil).
		Set("updated_at", now).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Question)

	return r.exec(ctx, query, "update")
}

func (r *SubscriptionRepository) exec(ctx context.Context, query sq.Sqlizer, op string) error {
	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("query build failed: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, sql, args...); err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}

	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
