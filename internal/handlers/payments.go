package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/umit144/license-sync/internal/api"
	"github.com/umit144/license-sync/internal/services"
	"go.uber.org/zap"
)

func (h *Handler) CreatePayment(c *fiber.Ctx) error {
	var req api.PaymentRequest
	if err := h.bind(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(api.PaymentResponse{Error: err.Error()})
	}

	p, err := h.payments.Create(c.UserContext(), services.CreatePaymentInput{
		Email:     req.Email,
		Plan:      req.Plan,
		ReturnURL: req.ReturnURL,
	})
	if err != nil {
		svcErr := asServiceError(err)
		resp := api.PaymentResponse{Error: svcErr.Message}
		switch svcErr.Kind {
		case services.KindInvalidPlan:
			resp.AvailablePlans = h.payments.AvailablePlans()
		case services.KindServer:
			h.log.Error("payment creation failed", zap.Error(err))
			resp.Error = "failed to create payment"
			resp.Details = "payment provider request failed"
		}
		return c.Status(statusFor(svcErr.Kind)).JSON(resp)
	}

	resp := api.PaymentResponse{
		Success:    true,
		PaymentID:  p.PaymentID,
		PaymentURL: p.PaymentURL,
		Amount: &api.Amount{
			Value:    p.Amount.StringFixed(2),
			Currency: p.Currency,
		},
		Plan: &api.PlanInfo{
			Name:     p.Offer.Name,
			Duration: p.Offer.Duration,
			Price:    p.Offer.Price.StringFixed(2),
		},
		Description: p.Description,
	}
	if !p.CreatedAt.IsZero() {
		resp.CreatedAt = &p.CreatedAt
	}
	return c.JSON(resp)
}
