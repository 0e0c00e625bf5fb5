package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Event
	}{
		{
			name: "payment succeeded",
			body: `{"type":"notification","event":"payment.succeeded","object":{"id":"P1","status":"succeeded",
				"amount":{"value":"500.00","currency":"RUB"},"metadata":{"email":" a@b.com ","plan":"yearly","user_id":42}}}`,
		},
		{
			name: "payment canceled",
			body: `{"type":"notification","event":"payment.canceled","object":{"id":"P2"}}`,
			want: PaymentCanceled{PaymentID: "P2"},
		},
		{
			name: "refund with payment id",
			body: `{"type":"notification","event":"refund.succeeded","object":{"id":"R1","payment_id":"P3"}}`,
			want: RefundSucceeded{RefundID: "R1", PaymentID: "P3"},
		},
		{
			name: "refund falls back to object id",
			body: `{"type":"notification","event":"refund.succeeded","object":{"id":"P4"}}`,
			want: RefundSucceeded{RefundID: "P4", PaymentID: "P4"},
		},
		{
			name: "unknown event",
			body: `{"type":"notification","event":"payment.waiting_for_capture","object":{"id":"P5"}}`,
			want: IgnoredEvent{Type: "notification", Event: "payment.waiting_for_capture"},
		},
		{
			name: "not a notification",
			body: `{"type":"ping","event":"payment.succeeded","object":{"id":"P6"}}`,
			want: IgnoredEvent{Type: "ping", Event: "payment.succeeded"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEvent([]byte(tt.body))
			require.NoError(t, err)
			if tt.want != nil {
				assert.Equal(t, tt.want, got)
				return
			}

			ev, ok := got.(PaymentSucceeded)
			require.True(t, ok)
			assert.Equal(t, "P1", ev.PaymentID)
			assert.Equal(t, "a@b.com", ev.Email)
			assert.Equal(t, "yearly", ev.Plan)
			assert.Equal(t, "500", ev.Amount.String())
			assert.Equal(t, "RUB", ev.Currency)
			assert.Equal(t, "42", ev.Metadata["user_id"])
		})
	}
}

func TestParseEventRejectsMalformedBodies(t *testing.T) {
	bodies := []string{
		`not json`,
		`{"type":"notification","event":"payment.succeeded","object":{}}`,
		`{"type":"notification","event":"payment.canceled","object":{}}`,
		`{"type":"notification","event":"refund.succeeded","object":{}}`,
	}
	for _, body := range bodies {
		_, err := ParseEvent([]byte(body))
		assert.Error(t, err, body)
	}
}

func TestParseEventKeepsPaymentWithUnreadableAmount(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"notification","event":"payment.succeeded",
		"object":{"id":"P1","amount":{"value":"abc","currency":"RUB"},"metadata":{"email":"a@b.com","plan":"monthly"}}}`))
	require.NoError(t, err)

	paid, ok := ev.(PaymentSucceeded)
	require.True(t, ok)
	assert.Equal(t, "P1", paid.PaymentID)
	assert.Equal(t, "a@b.com", paid.Email)
	assert.True(t, paid.Amount.IsZero())
}
