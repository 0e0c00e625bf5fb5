package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/umit144/license-sync/internal/logger"
	"github.com/umit144/license-sync/internal/models"
	"github.com/umit144/license-sync/internal/ports"
	"go.uber.org/zap"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type VerifyInput struct {
	Email         string
	LicenseKey    string
	Fingerprint   string
	ClientVersion string
}

type VerifyResult struct {
	Email       string
	Plan        models.Plan
	Status      models.SubscriptionStatus
	ExpiresAt   time.Time
	DaysLeft    int
	DeviceBound bool
	LastChecked time.Time
}

type VerificationService struct {
	store ports.SubscriptionStore
	log   *zap.Logger
	now   func() time.Time
}

func NewVerificationService(store ports.SubscriptionStore, log *zap.Logger, now func() time.Time) *VerificationService {
	if now == nil {
		now = time.Now
	}
	return &VerificationService{store: store, log: log, now: now}
}

// Verify runs the ordered checks: input, lookup, status, expiry, device. The
// first failing check decides the rejection. On success an unbound
// subscription is bound to the fingerprint and last_checked is refreshed.
func (s *VerificationService) Verify(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	email := models.NormalizeEmail(in.Email)
	key := strings.TrimSpace(in.LicenseKey)
	fingerprint := strings.TrimSpace(in.Fingerprint)

	if email == "" || key == "" || fingerprint == "" {
		return nil, validationError("email, license key and device fingerprint are required")
	}
	if !emailPattern.MatchString(email) {
		return nil, validationError("invalid email format")
	}

	log := s.log.With(zap.String("email", email), logger.MaskKey(key), zap.String("client_version", in.ClientVersion))

	sub, err := s.store.FindByCredentials(ctx, email, key)
	if errors.Is(err, ports.ErrNotFound) {
		log.Info("verification rejected: unknown credentials")
		return nil, &Error{Kind: KindNotFound, Message: "subscription not found, check your email and license key"}
	}
	if err != nil {
		return nil, serverError(fmt.Errorf("find subscription: %w", err))
	}

	switch sub.Status {
	case models.StatusActive:
	case models.StatusInactive:
		return nil, &Error{Kind: KindBlocked, Message: "subscription is deactivated"}
	default:
		return nil, &Error{Kind: KindBlocked, Message: "subscription is blocked"}
	}

	now := s.now().UTC()
	if !sub.ExpiresAt.After(now) {
		expiresAt := sub.ExpiresAt
		return nil, &Error{Kind: KindExpired, Message: "subscription has expired", Expired: true, ExpiresAt: &expiresAt}
	}

	if sub.IsBound() && sub.BoundFingerprint() != fingerprint {
		log.Warn("verification rejected: device mismatch")
		return nil, deviceConflict()
	}

	if !sub.IsBound() {
		bound, err := s.store.BindDevice(ctx, sub.ID, fingerprint, now)
		if err != nil {
			return nil, serverError(fmt.Errorf("bind device: %w", err))
		}
		if bound != fingerprint {
			log.Warn("verification rejected: device bound concurrently")
			return nil, deviceConflict()
		}
		log.Info("device bound to subscription", zap.String("subscription_id", sub.ID))
	}

	if err := s.store.TouchLastChecked(ctx, sub.ID, now); err != nil {
		log.Warn("failed to record verification time", zap.Error(err))
	}

	return &VerifyResult{
		Email:       sub.Email,
		Plan:        sub.Plan,
		Status:      sub.Status,
		ExpiresAt:   sub.ExpiresAt,
		DaysLeft:    sub.DaysLeft(now),
		DeviceBound: true,
		LastChecked: now,
	}, nil
}

// ResetDevice clears the fingerprint binding so the next verification binds
// whichever device asks first.
func (s *VerificationService) ResetDevice(ctx context.Context, email, licenseKey string) error {
	email = models.NormalizeEmail(email)
	licenseKey = strings.TrimSpace(licenseKey)
	if email == "" || licenseKey == "" {
		return validationError("email and license key are required")
	}

	sub, err := s.store.FindByCredentials(ctx, email, licenseKey)
	if errors.Is(err, ports.ErrNotFound) {
		return &Error{Kind: KindNotFound, Message: "subscription not found"}
	}
	if err != nil {
		return serverError(fmt.Errorf("find subscription: %w", err))
	}

	if err := s.store.ClearDevice(ctx, sub.ID, s.now().UTC()); err != nil {
		return serverError(fmt.Errorf("clear device: %w", err))
	}
	s.log.Info("device binding reset", zap.String("subscription_id", sub.ID), zap.String("email", email))
	return nil
}

func deviceConflict() *Error {
	return &Error{
		Kind:           KindDeviceConflict,
		Message:        "license is already activated on another device",
		DeviceConflict: true,
	}
}
