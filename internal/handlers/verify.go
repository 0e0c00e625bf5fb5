package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/umit144/license-sync/internal/api"
	"github.com/umit144/license-sync/internal/services"
	"go.uber.org/zap"
)

func (h *Handler) Verify(c *fiber.Ctx) error {
	var req api.VerifyRequest
	if err := h.bind(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(api.VerifyResponse{Error: err.Error()})
	}

	res, err := h.verifier.Verify(c.UserContext(), services.VerifyInput{
		Email:         req.Email,
		LicenseKey:    req.LicenseKey,
		Fingerprint:   req.DeviceFingerprint,
		ClientVersion: req.PluginVersion,
	})
	if err != nil {
		svcErr := asServiceError(err)
		status := statusFor(svcErr.Kind)
		if status == fiber.StatusInternalServerError {
			h.log.Error("verification failed", zap.Error(err))
		}
		return c.Status(status).JSON(api.VerifyResponse{
			Error:          svcErr.Message,
			Expired:        svcErr.Expired,
			DeviceConflict: svcErr.DeviceConflict,
			NetworkError:   status == fiber.StatusInternalServerError,
			ExpiresAt:      svcErr.ExpiresAt,
		})
	}

	return c.JSON(api.VerifyResponse{
		Valid:       true,
		Expires:     &res.ExpiresAt,
		Plan:        string(res.Plan),
		Status:      string(res.Status),
		DaysLeft:    res.DaysLeft,
		Email:       res.Email,
		DeviceBound: res.DeviceBound,
		LastChecked: &res.LastChecked,
	})
}
