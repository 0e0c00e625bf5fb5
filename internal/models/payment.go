package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentCanceled  PaymentStatus = "canceled"
	PaymentRefunded  PaymentStatus = "refunded"
)

const ProviderYooKassa = "yookassa"

// Payment is a ledger row keyed by the provider's payment id.
type Payment struct {
	ID             string          `db:"id"`
	PaymentID      string          `db:"payment_id"`
	SubscriptionID *string         `db:"subscription_id"`
	Amount         decimal.Decimal `db:"amount"`
	Currency       string          `db:"currency"`
	Status         PaymentStatus   `db:"status"`
	Provider       string          `db:"provider"`
	Metadata       Metadata        `db:"metadata"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// Metadata is the opaque provider metadata stored as a JSON column.
type Metadata map[string]string

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("metadata: unsupported source type %T", src)
	}
	if len(raw) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(raw, m)
}
