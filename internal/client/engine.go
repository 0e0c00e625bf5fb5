package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/umit144/license-sync/internal/api"
	"github.com/umit144/license-sync/internal/models"
	"go.uber.org/zap"
)

var ErrDemoDisabled = errors.New("test subscriptions are only available in demo mode")

const defaultDemoEmail = "test@demo.com"

// Command is one of VerifyCommand, StatusCommand, ResetCommand,
// DemoSubscriptionCommand or PurchaseCommand.
type Command interface {
	command()
}

type VerifyCommand struct {
	Email      string
	LicenseKey string
}

// StatusCommand reports local state. With Refresh the stored credentials are
// verified as well.
type StatusCommand struct {
	Refresh bool
}

type ResetCommand struct{}

type DemoSubscriptionCommand struct {
	Email string
	Plan  string
}

type PurchaseCommand struct {
	Email     string
	Plan      string
	ReturnURL string
}

func (VerifyCommand) command()           {}
func (StatusCommand) command()           {}
func (ResetCommand) command()            {}
func (DemoSubscriptionCommand) command() {}
func (PurchaseCommand) command()         {}

// Reply is the typed answer to a Command.
type Reply interface {
	reply()
}

type Status struct {
	Active           bool
	Email            string
	Expires          *time.Time
	LastChecked      *time.Time
	Cached           bool
	TestSubscription bool
}

type ResetReply struct {
	Active bool
}

type DemoSubscription struct {
	Email      string
	LicenseKey string
	Plan       models.Plan
	ExpiresAt  time.Time
}

type PurchaseReply struct {
	api.PaymentResponse
}

func (Status) reply()           {}
func (ResetReply) reply()       {}
func (DemoSubscription) reply() {}
func (PurchaseReply) reply()    {}

type Engine struct {
	verifier *VerificationClient
	demoMode bool
	log      *zap.Logger
}

func NewEngine(verifier *VerificationClient, demoMode bool, log *zap.Logger) *Engine {
	return &Engine{verifier: verifier, demoMode: demoMode, log: log}
}

func (e *Engine) Handle(ctx context.Context, cmd Command) (Reply, error) {
	switch c := cmd.(type) {
	case VerifyCommand:
		return e.verifier.Verify(ctx, c.Email, c.LicenseKey), nil
	case StatusCommand:
		return e.status(ctx, c.Refresh)
	case ResetCommand:
		if err := e.verifier.Reset(); err != nil {
			return nil, err
		}
		return ResetReply{Active: false}, nil
	case DemoSubscriptionCommand:
		return e.demoSubscription(c)
	case PurchaseCommand:
		return e.purchase(ctx, c)
	default:
		return nil, fmt.Errorf("unknown command %T", cmd)
	}
}

func (e *Engine) status(ctx context.Context, refresh bool) (Status, error) {
	var st Status
	if refresh {
		st.Active = e.verifier.IsActive(ctx)
	}

	email, _, err := e.verifier.store.Get(KeyUserEmail)
	if err != nil {
		return Status{}, fmt.Errorf("reading stored email: %w", err)
	}
	st.Email = email

	entry, err := e.verifier.cache.Read()
	if err != nil {
		e.log.Warn("cache read failed", zap.Error(err))
		return st, nil
	}
	if entry != nil {
		st.Cached = true
		st.Expires = &entry.Expires
		st.LastChecked = &entry.LastChecked
		st.TestSubscription = entry.TestSubscription
	}
	return st, nil
}

// demoSubscription mints a local TEST- subscription that only this
// installation knows about.
func (e *Engine) demoSubscription(c DemoSubscriptionCommand) (DemoSubscription, error) {
	if !e.demoMode {
		return DemoSubscription{}, ErrDemoDisabled
	}

	email := models.NormalizeEmail(c.Email)
	if email == "" {
		email = defaultDemoEmail
	}
	plan := models.NormalizePlan(c.Plan)
	now := e.verifier.now()

	sub := DemoSubscription{
		Email:      email,
		LicenseKey: models.GenerateTestLicenseKey(now),
		Plan:       plan,
		ExpiresAt:  plan.Extend(now),
	}

	if err := e.verifier.storeCredentials(sub.Email, sub.LicenseKey); err != nil {
		return DemoSubscription{}, fmt.Errorf("storing test subscription: %w", err)
	}
	err := e.verifier.cache.Write(CacheEntry{
		Valid:            true,
		Expires:          sub.ExpiresAt,
		LastChecked:      now,
		Email:            sub.Email,
		Plan:             string(sub.Plan),
		DaysLeft:         models.DaysUntil(sub.ExpiresAt, now),
		TestSubscription: true,
	})
	if err != nil {
		return DemoSubscription{}, fmt.Errorf("storing test subscription: %w", err)
	}

	e.log.Info("test subscription created", zap.String("email", sub.Email), zap.String("plan", string(sub.Plan)))
	return sub, nil
}

func (e *Engine) purchase(ctx context.Context, c PurchaseCommand) (PurchaseReply, error) {
	req := api.PaymentRequest{
		Email:     models.NormalizeEmail(c.Email),
		Plan:      strings.TrimSpace(c.Plan),
		ReturnURL: c.ReturnURL,
	}

	var resp api.PaymentResponse
	if _, err := e.verifier.post(ctx, api.PathPayments, req, &resp); err != nil {
		return PurchaseReply{}, err
	}
	return PurchaseReply{PaymentResponse: resp}, nil
}
