// Package handlers exposes the license services over HTTP.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/umit144/license-sync/internal/api"
	"github.com/umit144/license-sync/internal/services"
	"go.uber.org/zap"
)

type Verifier interface {
	Verify(ctx context.Context, in services.VerifyInput) (*services.VerifyResult, error)
	ResetDevice(ctx context.Context, email, licenseKey string) error
}

type PaymentCreator interface {
	Create(ctx context.Context, in services.CreatePaymentInput) (*services.CreatedPayment, error)
	AvailablePlans() []string
}

type EventHandler interface {
	Handle(ctx context.Context, event services.Event) (services.Outcome, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	verifier   Verifier
	payments   PaymentCreator
	reconciler EventHandler
	db         Pinger
	adminKey   string
	validate   *validator.Validate
	log        *zap.Logger
}

func New(verifier Verifier, payments PaymentCreator, reconciler EventHandler, db Pinger, adminKey string, log *zap.Logger) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		verifier:   verifier,
		payments:   payments,
		reconciler: reconciler,
		db:         db,
		adminKey:   adminKey,
		validate:   v,
		log:        log,
	}
}

// NewApp builds the Fiber application with every route registered.
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "license-sync",
		BodyLimit:             64 << 10,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		DisableStartupMessage: true,
	})

	app.Use(recover.New(), logger.New(logger.Config{
		Output: zap.NewStdLog(h.log.Named("http")).Writer(),
		Format: "${status} ${method} ${path} ${latency}\n",
	}))

	h.Register(app)
	return app
}

func (h *Handler) Register(app *fiber.App) {
	app.Get(api.PathHealth, h.Health)
	app.Post(api.PathVerify, h.Verify)
	app.Post(api.PathPayments, h.CreatePayment)
	app.Post(api.PathWebhook, h.Webhook)
	app.Post(api.PathDeviceReset, h.requireAdmin, h.ResetDevice)
}

func (h *Handler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.log.Error("health check failed", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// bind decodes the JSON body into req and runs its validate tags.
func (h *Handler) bind(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return errors.New("invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return validationMessage(err)
	}
	return nil
}

func validationMessage(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}

	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", fe.Field())
	case "max":
		return fmt.Errorf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "url":
		return fmt.Errorf("%s must be a valid URL", fe.Field())
	default:
		return fmt.Errorf("%s is invalid", fe.Field())
	}
}

func statusFor(kind services.ErrorKind) int {
	switch kind {
	case services.KindValidation, services.KindInvalidPlan:
		return fiber.StatusBadRequest
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindBlocked, services.KindExpired, services.KindDeviceConflict:
		return fiber.StatusForbidden
	case services.KindUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// asServiceError converts any error into a *services.Error, treating unknown
// errors as internal failures.
func asServiceError(err error) *services.Error {
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return &services.Error{Kind: services.KindServer, Message: "internal server error", Err: err}
}
