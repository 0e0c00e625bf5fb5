// Package api holds the JSON messages exchanged between the license server
// and its clients.
package api

import "time"

const (
	PathVerify      = "/verify"
	PathPayments    = "/payments"
	PathWebhook     = "/webhooks/yookassa"
	PathDeviceReset = "/admin/subscriptions/device-reset"
	PathHealth      = "/healthz"

	HeaderAdminKey = "X-Admin-Key"
)

type VerifyRequest struct {
	Email             string `json:"email" validate:"required,max=255"`
	LicenseKey        string `json:"license_key" validate:"required,max=64"`
	DeviceFingerprint string `json:"device_fingerprint" validate:"required,max=255"`
	PluginVersion     string `json:"plugin_version,omitempty" validate:"max=32"`
}

// VerifyResponse carries either a valid subscription or a denial. Denials
// always set Error and the matching machine flag.
type VerifyResponse struct {
	Valid       bool       `json:"valid"`
	Expires     *time.Time `json:"expires,omitempty"`
	Plan        string     `json:"plan,omitempty"`
	Status      string     `json:"status,omitempty"`
	DaysLeft    int        `json:"days_left,omitempty"`
	Email       string     `json:"email,omitempty"`
	DeviceBound bool       `json:"device_bound,omitempty"`
	LastChecked *time.Time `json:"last_checked,omitempty"`

	Error          string     `json:"error,omitempty"`
	Expired        bool       `json:"expired,omitempty"`
	DeviceConflict bool       `json:"device_conflict,omitempty"`
	NetworkError   bool       `json:"network_error,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

type PaymentRequest struct {
	Email     string `json:"email" validate:"required,max=255"`
	Plan      string `json:"plan" validate:"required,max=16"`
	ReturnURL string `json:"return_url,omitempty" validate:"omitempty,url"`
}

type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type PlanInfo struct {
	Name     string `json:"name"`
	Duration string `json:"duration"`
	Price    string `json:"price"`
}

type PaymentResponse struct {
	Success     bool       `json:"success"`
	PaymentID   string     `json:"payment_id,omitempty"`
	PaymentURL  string     `json:"payment_url,omitempty"`
	Amount      *Amount    `json:"amount,omitempty"`
	Plan        *PlanInfo  `json:"plan,omitempty"`
	Description string     `json:"description,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`

	Error          string   `json:"error,omitempty"`
	Details        string   `json:"details,omitempty"`
	AvailablePlans []string `json:"available_plans,omitempty"`
}

type DeviceResetRequest struct {
	Email      string `json:"email" validate:"required,max=255"`
	LicenseKey string `json:"license_key" validate:"required,max=64"`
}

type StatusResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
