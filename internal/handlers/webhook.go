package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/umit144/license-sync/internal/services"
	"go.uber.org/zap"
)

// Webhook answers 200 once the event is applied or deliberately ignored and
// 500 otherwise, including unreadable bodies, so the provider redelivers.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	event, err := services.ParseEvent(c.Body())
	if err != nil {
		h.log.Error("unreadable webhook payload", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).SendString("Error")
	}

	outcome, err := h.reconciler.Handle(c.UserContext(), event)
	if err != nil {
		h.log.Error("webhook processing failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).SendString("Error")
	}

	h.log.Debug("webhook processed", zap.String("outcome", string(outcome)))
	return c.SendString("OK")
}
