package handlers

import (
	"log/slog"

	"github.com/amirphl/marketplace-settlement/app/dto"
	businessflow "github.com/amirphl/marketplace-settlement/business_flow"
	"github.com/gofiber/fiber/v3"
)

// AuditHandlerInterface defines the contract for audit trail handlers
type AuditHandlerInterface interface {
	ListAuditLogs(c fiber.Ctx) error
}

// AuditHandler serves the audit trail to administrators
type AuditHandler struct {
	responder
	auditFlow businessflow.AuditFlow
}

func NewAuditHandler(auditFlow businessflow.AuditFlow, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		responder: newResponder(logger),
		auditFlow: auditFlow,
	}
}

// ListAuditLogs returns one page of audit entries
// @Router /api/v1/admin/audit-logs [get]
func (h *AuditHandler) ListAuditLogs(c fiber.Ctx) error {
	var req dto.ListAuditLogsRequest
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if !h.validate(c, &req) {
		return nil
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.auditFlow.ListAuditLogs(ctx, &req)
	if err != nil {
		return h.FlowError(c, err, "Failed to list audit logs")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Audit logs retrieved", result)
}
