package handlers

import (
	"log/slog"

	"github.com/amirphl/marketplace-settlement/app/dto"
	businessflow "github.com/amirphl/marketplace-settlement/business_flow"
	"github.com/gofiber/fiber/v3"
)

// CommissionHandlerInterface defines the contract for commission handlers
type CommissionHandlerInterface interface {
	ResolveCommission(c fiber.Ctx) error
	CreateCommissionLines(c fiber.Ctx) error
	ListCommissionRules(c fiber.Ctx) error
	CreateCommissionRule(c fiber.Ctx) error
	UpdateCommissionRule(c fiber.Ctx) error
	DeleteCommissionRule(c fiber.Ctx) error
}

// CommissionHandler handles commission resolution and rule administration
type CommissionHandler struct {
	responder
	commissionFlow businessflow.CommissionFlow
}

// NewCommissionHandler creates a new commission handler
func NewCommissionHandler(commissionFlow businessflow.CommissionFlow, logger *slog.Logger) *CommissionHandler {
	return &CommissionHandler{
		responder:      newResponder(logger),
		commissionFlow: commissionFlow,
	}
}

// ResolveCommission returns the rule that applies to a line item
// @Router /api/v1/commission/resolve [post]
func (h *CommissionHandler) ResolveCommission(c fiber.Ctx) error {
	var req dto.ResolveCommissionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if !h.validate(c, &req) {
		return nil
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.commissionFlow.ResolveCommission(ctx, &req)
	if err != nil {
		return h.FlowError(c, err, "Failed to resolve commission")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Commission resolved", result)
}

// CreateCommissionLines writes the per line commissions of a placed order
// @Router /api/v1/commission/lines [post]
func (h *CommissionHandler) CreateCommissionLines(c fiber.Ctx) error {
	var req dto.CreateCommissionLinesRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if !h.validate(c, &req) {
		return nil
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.commissionFlow.CreateCommissionLinesForOrder(ctx, &req, h.clientMetadata(c))
	if err != nil {
		return h.FlowError(c, err, "Failed to create commission lines")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Commission lines processed", result)
}

// ListCommissionRules returns one page of rules
// @Router /api/v1/admin/commission-rules [get]
func (h *CommissionHandler) ListCommissionRules(c fiber.Ctx) error {
	var req dto.ListCommissionRulesRequest
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if !h.validate(c, &req) {
		return nil
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.commissionFlow.ListCommissionRules(ctx, &req)
	if err != nil {
		return h.FlowError(c, err, "Failed to list commission rules")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Commission rules retrieved", result)
}

// CreateCommissionRule creates a rule for a scope
// @Router /api/v1/admin/commission-rules [post]
func (h *CommissionHandler) CreateCommissionRule(c fiber.Ctx) error {
	var req dto.CreateCommissionRuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if !h.validate(c, &req) {
		return nil
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.commissionFlow.CreateCommissionRule(ctx, &req, h.clientMetadata(c))
	if err != nil {
		return h.FlowError(c, err, "Failed to create commission rule")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Commission rule created", result)
}

// UpdateCommissionRule changes the provided fields of a rule
// @Router /api/v1/admin/commission-rules/{id} [put]
func (h *CommissionHandler) UpdateCommissionRule(c fiber.Ctx) error {
	var req dto.UpdateCommissionRuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if !h.validate(c, &req) {
		return nil
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.commissionFlow.UpdateCommissionRule(ctx, c.Params("id"), &req, h.clientMetadata(c))
	if err != nil {
		return h.FlowError(c, err, "Failed to update commission rule")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Commission rule updated", result)
}

// DeleteCommissionRule soft deletes a rule
// @Router /api/v1/admin/commission-rules/{id} [delete]
func (h *CommissionHandler) DeleteCommissionRule(c fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.commissionFlow.DeleteCommissionRule(ctx, c.Params("id"), h.clientMetadata(c)); err != nil {
		return h.FlowError(c, err, "Failed to delete commission rule")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Commission rule deleted", nil)
}
