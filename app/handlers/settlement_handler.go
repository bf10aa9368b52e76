package handlers

import (
	"log/slog"

	"github.com/amirphl/marketplace-settlement/app/dto"
	businessflow "github.com/amirphl/marketplace-settlement/business_flow"
	"github.com/gofiber/fiber/v3"
)

// SettlementHandlerInterface defines the contract for split payment handlers
type SettlementHandlerInterface interface {
	CreateSplitPayment(c fiber.Ctx) error
	GetSplitPayment(c fiber.Ctx) error
	InitiatePayment(c fiber.Ctx) error
	CaptureSplitPayment(c fiber.Ctx) error
	CaptureOrderSet(c fiber.Ctx) error
	RefundSplitPayment(c fiber.Ctx) error
	GetOrderPayout(c fiber.Ctx) error
	GatewayWebhook(c fiber.Ctx) error
}

// SettlementHandler handles split payment HTTP requests
type SettlementHandler struct {
	responder
	settlementFlow businessflow.SettlementFlow
}

// NewSettlementHandler creates a new settlement handler
func NewSettlementHandler(settlementFlow businessflow.SettlementFlow, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{
		responder:      newResponder(logger),
		settlementFlow: settlementFlow,
	}
}

// CreateSplitPayment opens the ledger row of one seller order
// @Router /api/v1/split-payments [post]
func (h *SettlementHandler) CreateSplitPayment(c fiber.Ctx) error {
	var req dto.CreateSplitPaymentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if !h.validate(c, &req) {
		return nil
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.settlementFlow.CreateSplitPayment(ctx, &req, h.clientMetadata(c))
	if err != nil {
		return h.FlowError(c, err, "Failed to create split payment")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Split payment created", result)
}

// GetSplitPayment returns one split payment
// @Router /api/v1/split-payments/{id} [get]
func (h *SettlementHandler) GetSplitPayment(c fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.settlementFlow.GetSplitPayment(ctx, c.Params("id"))
	if err != nil {
		return h.FlowError(c, err, "Failed to retrieve split payment")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Split payment retrieved", result)
}

// InitiatePayment opens a gateway payment intent for a split payment
// @Router /api/v1/split-payments/{id}/initiate [post]
func (h *SettlementHandler) InitiatePayment(c fiber.Ctx) error {
	var req dto.InitiatePaymentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if !h.validate(c, &req) {
		return nil
	}
	if !req.Amount.IsPositive() {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", []string{"Amount must be positive"})
	}
	req.SplitPaymentID = c.Params("id")

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.settlementFlow.InitiatePayment(ctx, &req, h.clientMetadata(c))
	if err != nil {
		return h.FlowError(c, err, "Failed to initiate payment")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Payment initiated", result)
}

// CaptureSplitPayment captures the authorized funds of one split payment
// @Router /api/v1/split-payments/{id}/capture [post]
func (h *SettlementHandler) CaptureSplitPayment(c fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.settlementFlow.CaptureSplitPayment(ctx, c.Params("id"), h.clientMetadata(c))
	if err != nil {
		return h.FlowError(c, err, "Failed to capture split payment")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Split payment captured", result)
}

// CaptureOrderSet captures every split payment of a checkout
// @Router /api/v1/payment-collections/capture [post]
func (h *SettlementHandler) CaptureOrderSet(c fiber.Ctx) error {
	var req dto.CaptureOrderSetRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if !h.validate(c, &req) {
		return nil
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.settlementFlow.CaptureOrderSet(ctx, &req, h.clientMetadata(c))
	if err != nil {
		return h.FlowError(c, err, "Failed to capture order set")
	}

	// partial failures are reported per payment
	status := fiber.StatusOK
	if result.Failed > 0 {
		status = fiber.StatusMultiStatus
	}
	return h.SuccessResponse(c, status, "Order set processed", result)
}

// RefundSplitPayment refunds part or all of a captured split payment
// @Router /api/v1/split-payments/{id}/refund [post]
func (h *SettlementHandler) RefundSplitPayment(c fiber.Ctx) error {
	var req dto.RefundSplitPaymentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if !h.validate(c, &req) {
		return nil
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.settlementFlow.RefundSplitPayment(ctx, c.Params("id"), &req, h.clientMetadata(c))
	if err != nil {
		return h.FlowError(c, err, "Failed to refund split payment")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Refund recorded", result)
}

// GetOrderPayout returns what the seller of an order is owed
// @Router /api/v1/orders/{order_id}/payout [get]
func (h *SettlementHandler) GetOrderPayout(c fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.settlementFlow.CalculatePayoutForOrder(ctx, c.Params("order_id"))
	if err != nil {
		return h.FlowError(c, err, "Failed to calculate payout")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Payout calculated", result)
}

// GatewayWebhook applies a gateway event. The signature is verified by the edge proxy.
// Events that cannot be applied right now answer 5xx so the gateway redelivers them.
// @Router /api/v1/webhooks/gateway [post]
func (h *SettlementHandler) GatewayWebhook(c fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.settlementFlow.HandleWebhook(ctx, payload, h.clientMetadata(c))
	if err != nil {
		if businessflow.IsRetryable(err) {
			return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Webhook not applied, retry later", businessflow.BusinessErrorCode(err), nil)
		}
		return h.FlowError(c, err, "Failed to process webhook")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Webhook processed", result)
}
