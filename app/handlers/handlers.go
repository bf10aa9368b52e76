// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirphl/marketplace-settlement/app/dto"
	businessflow "github.com/amirphl/marketplace-settlement/business_flow"
	"github.com/amirphl/marketplace-settlement/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
)

const defaultRequestTimeout = 30 * time.Second

// responder holds what every handler needs to validate requests and write the standard envelope
type responder struct {
	validator *validator.Validate
	logger    *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{validator: validator.New(), logger: logger}
}

func (h responder) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h responder) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// validate writes a 400 response for an invalid request. Callers stop when it returns false.
func (h responder) validate(c fiber.Ctx, req any) bool {
	err := h.validator.Struct(req)
	if err == nil {
		return true
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		_ = h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err.Error())
		return false
	}
	var validationErrors []string
	for _, fe := range fieldErrors {
		validationErrors = append(validationErrors, getValidationErrorMessage(fe))
	}
	_ = h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	return false
}

// FlowError maps a business flow error to its HTTP status by error category
func (h responder) FlowError(c fiber.Ctx, err error, message string) error {
	code := businessflow.BusinessErrorCode(err)
	if code == "" {
		code = "INTERNAL_ERROR"
	}

	switch {
	case businessflow.IsNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, message, code, err.Error())
	case businessflow.IsConflict(err):
		return h.ErrorResponse(c, fiber.StatusConflict, message, code, err.Error())
	case businessflow.IsConfigurationError(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, message, code, err.Error())
	case businessflow.IsInvariantViolation(err):
		return h.ErrorResponse(c, fiber.StatusUnprocessableEntity, message, code, err.Error())
	case businessflow.IsGatewayError(err):
		h.logger.Warn("gateway error", "path", c.Path(), "request_id", requestid.FromContext(c), "error", err)
		if businessflow.IsRetryable(err) {
			return h.ErrorResponse(c, fiber.StatusServiceUnavailable, message, code, nil)
		}
		return h.ErrorResponse(c, fiber.StatusBadGateway, message, code, nil)
	}

	h.logger.Error("request failed", "path", c.Path(), "request_id", requestid.FromContext(c), "error", err)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, message, code, nil)
}

// clientMetadata collects the caller information written to the audit log
func (h responder) clientMetadata(c fiber.Ctx) *businessflow.ClientMetadata {
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(requestid.FromContext(c))
	return metadata
}

// requestContext detaches the flow from the connection and bounds it with a timeout
func (h responder) requestContext(c fiber.Ctx) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRequestTimeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, requestid.FromContext(c))
	return ctx, cancel
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "min":
		return err.Field() + " must be at least " + err.Param()
	case "max":
		return err.Field() + " must be at most " + err.Param()
	case "len":
		return err.Field() + " must be exactly " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}
