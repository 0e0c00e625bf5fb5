package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/umit144/license-sync/internal/models"
	"github.com/umit144/license-sync/internal/plans"
	"go.uber.org/zap"
)

// PaymentInitiator creates a hosted payment with the provider and returns the
// URL the buyer is redirected to.
type PaymentInitiator interface {
	CreatePayment(ctx context.Context, req ProviderPaymentRequest) (*ProviderPayment, error)
}

type ProviderPaymentRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Description string
	Email       string
	Plan        models.Plan
	ReturnURL   string
}

type ProviderPayment struct {
	ID              string
	Status          string
	Amount          decimal.Decimal
	Currency        string
	ConfirmationURL string
	CreatedAt       time.Time
}

type CreatePaymentInput struct {
	Email     string
	Plan      string
	ReturnURL string
}

type CreatedPayment struct {
	PaymentID   string
	PaymentURL  string
	Amount      decimal.Decimal
	Currency    string
	Description string
	CreatedAt   time.Time
	Offer       plans.Offer
}

type PaymentService struct {
	initiator        PaymentInitiator
	catalog          *plans.Catalog
	defaultReturnURL string
	log              *zap.Logger
}

// NewPaymentService returns a service that refuses every request when
// initiator is nil.
func NewPaymentService(initiator PaymentInitiator, catalog *plans.Catalog, defaultReturnURL string, log *zap.Logger) *PaymentService {
	return &PaymentService{
		initiator:        initiator,
		catalog:          catalog,
		defaultReturnURL: defaultReturnURL,
		log:              log,
	}
}

func (s *PaymentService) Enabled() bool { return s.initiator != nil }

func (s *PaymentService) AvailablePlans() []string { return s.catalog.Names() }

func (s *PaymentService) Create(ctx context.Context, in CreatePaymentInput) (*CreatedPayment, error) {
	if !s.Enabled() {
		return nil, &Error{Kind: KindUnavailable, Message: "payments are not configured"}
	}

	email := models.NormalizeEmail(in.Email)
	if email == "" || strings.TrimSpace(in.Plan) == "" {
		return nil, validationError("email and plan are required")
	}
	if !emailPattern.MatchString(email) {
		return nil, validationError("invalid email format")
	}

	plan, ok := models.ParsePlan(in.Plan)
	if !ok {
		return nil, &Error{Kind: KindInvalidPlan, Message: "invalid subscription plan"}
	}
	offer, ok := s.catalog.Lookup(plan)
	if !ok {
		return nil, &Error{Kind: KindInvalidPlan, Message: "invalid subscription plan"}
	}

	returnURL := strings.TrimSpace(in.ReturnURL)
	if returnURL == "" {
		returnURL = s.defaultReturnURL
	}

	description := offer.Name
	if s.catalog.Product != "" {
		description = fmt.Sprintf("%s - %s", offer.Name, s.catalog.Product)
	}

	s.log.Info("creating payment", zap.String("email", email), zap.String("plan", string(plan)), zap.Stringer("amount", offer.Price))

	p, err := s.initiator.CreatePayment(ctx, ProviderPaymentRequest{
		Amount:      offer.Price,
		Currency:    offer.Currency,
		Description: description,
		Email:       email,
		Plan:        plan,
		ReturnURL:   returnURL,
	})
	if err != nil {
		return nil, serverError(fmt.Errorf("create provider payment: %w", err))
	}

	s.log.Info("payment created", zap.String("payment_id", p.ID), zap.String("email", email))
	return &CreatedPayment{
		PaymentID:   p.ID,
		PaymentURL:  p.ConfirmationURL,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Description: description,
		CreatedAt:   p.CreatedAt,
		Offer:       offer,
	}, nil
}
