package handlers

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/umit144/license-sync/internal/api"
	"go.uber.org/zap"
)

func (h *Handler) requireAdmin(c *fiber.Ctx) error {
	given := c.Get(api.HeaderAdminKey)
	if h.adminKey == "" || subtle.ConstantTimeCompare([]byte(given), []byte(h.adminKey)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(api.StatusResponse{Error: "unauthorized"})
	}
	return c.Next()
}

func (h *Handler) ResetDevice(c *fiber.Ctx) error {
	var req api.DeviceResetRequest
	if err := h.bind(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(api.StatusResponse{Error: err.Error()})
	}

	if err := h.verifier.ResetDevice(c.UserContext(), req.Email, req.LicenseKey); err != nil {
		svcErr := asServiceError(err)
		status := statusFor(svcErr.Kind)
		if status == fiber.StatusInternalServerError {
			h.log.Error("device reset failed", zap.Error(err))
		}
		return c.Status(status).JSON(api.StatusResponse{Error: svcErr.Message})
	}
	return c.JSON(api.StatusResponse{Success: true})
}
