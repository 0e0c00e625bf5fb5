package ports

import (
	"context"
	"errors"
	"time"

	"github.com/umit144/license-sync/internal/models"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicatePayment = errors.New("payment already recorded")
)

type SubscriptionStore interface {
	FindByCredentials(ctx context.Context, email, licenseKey string) (*models.Subscription, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*models.Subscription, error)
	// BindDevice sets the fingerprint only when none is bound yet and returns
	// the fingerprint that is bound once the statement completes.
	BindDevice(ctx context.Context, id, fingerprint string, now time.Time) (string, error)
	TouchLastChecked(ctx context.Context, id string, now time.Time) error
	UpdateStatus(ctx context.Context, id string, status models.SubscriptionStatus, now time.Time) error
	ClearDevice(ctx context.Context, id string, now time.Time) error
	ListExpiring(ctx context.Context, q ExpiryQuery) ([]models.Subscription, error)
}

// ExpiryQuery selects one page of active subscriptions with
// From <= expires_at < Before in (expires_at, id) order. A non-empty AfterID
// resumes after the (AfterExpiry, AfterID) row of the previous page.
type ExpiryQuery struct {
	From        time.Time
	Before      time.Time
	AfterExpiry time.Time
	AfterID     string
	Limit       int
}

type PaymentStore interface {
	// UpsertPayment inserts the row or refreshes amount, currency and
	// metadata of an existing one. Status and subscription link are kept.
	UpsertPayment(ctx context.Context, p *models.Payment) error
	// UpdatePaymentStatus reports whether a row matched paymentID.
	UpdatePaymentStatus(ctx context.Context, paymentID string, status models.PaymentStatus, now time.Time) (bool, error)
}

// LedgerTx is the set of writes a payment event performs atomically.
type LedgerTx interface {
	// InsertPayment returns ErrDuplicatePayment when the provider payment id
	// already exists.
	InsertPayment(ctx context.Context, p *models.Payment) error
	LockSubscriptionByEmail(ctx context.Context, email string) (*models.Subscription, error)
	CreateSubscription(ctx context.Context, s *models.Subscription) error
	RenewSubscription(ctx context.Context, s *models.Subscription) error
	LinkPayment(ctx context.Context, paymentID, subscriptionID string, now time.Time) error
}

type Store interface {
	SubscriptionStore
	PaymentStore
	InTx(ctx context.Context, fn func(tx LedgerTx) error) error
	Ping(ctx context.Context) error
}
