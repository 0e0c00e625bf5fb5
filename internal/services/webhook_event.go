package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const notificationType = "notification"

// Event is one of PaymentSucceeded, PaymentCanceled, RefundSucceeded or
// IgnoredEvent.
type Event interface {
	eventName() string
}

type PaymentSucceeded struct {
	PaymentID string
	Email     string
	Plan      string
	Amount    decimal.Decimal
	Currency  string
	Metadata  map[string]string
}

type PaymentCanceled struct {
	PaymentID string
}

type RefundSucceeded struct {
	RefundID  string
	PaymentID string
}

type IgnoredEvent struct {
	Type  string
	Event string
}

func (PaymentSucceeded) eventName() string { return "payment.succeeded" }
func (PaymentCanceled) eventName() string  { return "payment.canceled" }
func (RefundSucceeded) eventName() string  { return "refund.succeeded" }
func (e IgnoredEvent) eventName() string   { return e.Event }

type providerNotification struct {
	Type   string         `json:"type"`
	Event  string         `json:"event"`
	Object providerObject `json:"object"`
}

type providerObject struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	Amount    struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"amount"`
	Metadata map[string]any `json:"metadata"`
}

// ParseEvent decodes a provider notification. Unsupported types and events
// come back as IgnoredEvent; a body that is not JSON or a supported event
// without a payment id is an error.
func ParseEvent(body []byte) (Event, error) {
	var n providerNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	if n.Type != notificationType {
		return IgnoredEvent{Type: n.Type, Event: n.Event}, nil
	}

	obj := n.Object
	switch n.Event {
	case PaymentSucceeded{}.eventName():
		if obj.ID == "" {
			return nil, fmt.Errorf("payment.succeeded without payment id")
		}
		// an unreadable amount is recorded as zero; the subscription is
		// granted from the payment id and metadata alone
		amount, err := decimal.NewFromString(obj.Amount.Value)
		if err != nil {
			amount = decimal.Zero
		}
		metadata := stringMetadata(obj.Metadata)
		return PaymentSucceeded{
			PaymentID: obj.ID,
			Email:     metadata["email"],
			Plan:      metadata["plan"],
			Amount:    amount,
			Currency:  obj.Amount.Currency,
			Metadata:  metadata,
		}, nil
	case PaymentCanceled{}.eventName():
		if obj.ID == "" {
			return nil, fmt.Errorf("payment.canceled without payment id")
		}
		return PaymentCanceled{PaymentID: obj.ID}, nil
	case RefundSucceeded{}.eventName():
		paymentID := obj.PaymentID
		if paymentID == "" {
			paymentID = obj.ID
		}
		if paymentID == "" {
			return nil, fmt.Errorf("refund.succeeded without payment id")
		}
		return RefundSucceeded{RefundID: obj.ID, PaymentID: paymentID}, nil
	default:
		return IgnoredEvent{Type: n.Type, Event: n.Event}, nil
	}
}

func stringMetadata(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = strings.TrimSpace(val)
		case nil:
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
