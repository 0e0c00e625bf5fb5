package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/umit144/license-sync/internal/database"
	"github.com/umit144/license-sync/internal/models"
	"github.com/umit144/license-sync/internal/ports"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store is the MySQL implementation of ports.Store.
type Store struct {
	db            *database.Database
	subscriptions *SubscriptionRepository
	payments      *PaymentRepository
}

var _ ports.Store = (*Store)(nil)

func NewStore(db *database.Database) *Store {
	return &Store{
		db:            db,
		subscriptions: NewSubscriptionRepository(db),
		payments:      NewPaymentRepository(db),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) FindByCredentials(ctx context.Context, email, licenseKey string) (*models.Subscription, error) {
	return s.subscriptions.FindByCredentials(ctx, email, licenseKey)
}

func (s *Store) FindByPaymentID(ctx context.Context, paymentID string) (*models.Subscription, error) {
	return s.subscriptions.FindByPaymentID(ctx, paymentID)
}

func (s *Store) BindDevice(ctx context.Context, id, fingerprint string, now time.Time) (string, error) {
	var bound string
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		bound, err = NewSubscriptionRepository(tx).BindDevice(ctx, id, fingerprint, now)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("binding device: %w", err)
	}
	return bound, nil
}

func (s *Store) TouchLastChecked(ctx context.Context, id string, now time.Time) error {
	return s.subscriptions.TouchLastChecked(ctx, id, now)
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status models.SubscriptionStatus, now time.Time) error {
	return s.subscriptions.UpdateStatus(ctx, id, status, now)
}

func (s *Store) ClearDevice(ctx context.Context, id string, now time.Time) error {
	return s.subscriptions.ClearDevice(ctx, id, now)
}

func (s *Store) ListExpiring(ctx context.Context, q ports.ExpiryQuery) ([]models.Subscription, error) {
	return s.subscriptions.ListExpiring(ctx, q)
}

func (s *Store) UpsertPayment(ctx context.Context, p *models.Payment) error {
	return s.payments.Upsert(ctx, p)
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, paymentID string, status models.PaymentStatus, now time.Time) (bool, error) {
	return s.payments.UpdateStatus(ctx, paymentID, status, now)
}

func (s *Store) InTx(ctx context.Context, fn func(tx ports.LedgerTx) error) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(&ledgerTx{
			subscriptions: NewSubscriptionRepository(tx),
			payments:      NewPaymentRepository(tx),
		})
	})
}

type ledgerTx struct {
	subscriptions *SubscriptionRepository
	payments      *PaymentRepository
}

func (t *ledgerTx) InsertPayment(ctx context.Context, p *models.Payment) error {
	return t.payments.Insert(ctx, p)
}

func (t *ledgerTx) LockSubscriptionByEmail(ctx context.Context, email string) (*models.Subscription, error) {
	return t.subscriptions.LockByEmail(ctx, email)
}

func (t *ledgerTx) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	return t.subscriptions.Create(ctx, sub)
}

func (t *ledgerTx) RenewSubscription(ctx context.Context, sub *models.Subscription) error {
	return t.subscriptions.Renew(ctx, sub)
}

func (t *ledgerTx) LinkPayment(ctx context.Context, paymentID, subscriptionID string, now time.Time) error {
	return t.payments.LinkSubscription(ctx, paymentID, subscriptionID, now)
}
