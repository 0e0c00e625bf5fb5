package models

import (
	"strings"
	"time"
)

type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "active"
	StatusInactive SubscriptionStatus = "inactive"
	StatusBlocked  SubscriptionStatus = "blocked"
)

// Subscription is the authoritative license record. LicenseKey never changes
// after issuance and DeviceFingerprint is written at most once per binding.
type Subscription struct {
	ID                string             `db:"id"`
	Email             string             `db:"email"`
	LicenseKey        string             `db:"license_key"`
	DeviceFingerprint *string            `db:"device_fingerprint"`
	Status            SubscriptionStatus `db:"status"`
	Plan              Plan               `db:"plan"`
	ExpiresAt         time.Time          `db:"expires_at"`
	LastChecked       *time.Time         `db:"last_checked"`
	PaymentID         *string            `db:"payment_id"`
	CreatedAt         time.Time          `db:"created_at"`
	UpdatedAt         time.Time          `db:"updated_at"`
}

func (s *Subscription) BoundFingerprint() string {
	if s.DeviceFingerprint == nil {
		return ""
	}
	return *s.DeviceFingerprint
}

func (s *Subscription) IsBound() bool {
	return s.BoundFingerprint() != ""
}

// DaysLeft rounds the remaining time up to whole days.
func (s *Subscription) DaysLeft(now time.Time) int {
	return DaysUntil(s.ExpiresAt, now)
}

func DaysUntil(expiresAt, now time.Time) int {
	const day = 24 * time.Hour
	d := expiresAt.Sub(now)
	days := d / day
	if d%day > 0 {
		days++
	}
	return int(days)
}

// NormalizeEmail is applied to every email before it is stored or compared.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
