package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amirphl/marketplace-settlement/app/dto"
	"github.com/amirphl/marketplace-settlement/app/services"
	businessflow "github.com/amirphl/marketplace-settlement/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSettlementFlow struct {
	businessflow.SettlementFlow

	err          error
	captureSet   *dto.CaptureOrderSetResponse
	lastInitiate *dto.InitiatePaymentRequest
	lastPayload  []byte
	calls        int
}

func (s *stubSettlementFlow) GetSplitPayment(ctx context.Context, id string) (*dto.SplitPaymentDTO, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.SplitPaymentDTO{ID: id, Status: "pending"}, nil
}

func (s *stubSettlementFlow) InitiatePayment(ctx context.Context, req *dto.InitiatePaymentRequest, metadata *businessflow.ClientMetadata) (*dto.InitiatePaymentResponse, error) {
	s.lastInitiate = req
	if s.err != nil {
		return nil, s.err
	}
	return &dto.InitiatePaymentResponse{IntentID: "pi_1"}, nil
}

func (s *stubSettlementFlow) CaptureOrderSet(ctx context.Context, req *dto.CaptureOrderSetRequest, metadata *businessflow.ClientMetadata) (*dto.CaptureOrderSetResponse, error) {
	s.calls++
	return s.captureSet, s.err
}

func (s *stubSettlementFlow) RefundSplitPayment(ctx context.Context, id string, req *dto.RefundSplitPaymentRequest, metadata *businessflow.ClientMetadata) (*dto.RefundSplitPaymentResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &dto.RefundSplitPaymentResponse{Refunded: req.Amount}, nil
}

func (s *stubSettlementFlow) HandleWebhook(ctx context.Context, payload []byte, metadata *businessflow.ClientMetadata) (*dto.WebhookResponse, error) {
	s.lastPayload = payload
	if s.err != nil {
		return nil, s.err
	}
	return &dto.WebhookResponse{Outcome: businessflow.WebhookOutcomeApplied}, nil
}

func newSettlementApp(flow *stubSettlementFlow) *fiber.App {
	h := NewSettlementHandler(flow, slog.New(slog.NewTextHandler(io.Discard, nil)))
	app := fiber.New()
	app.Get("/split-payments/:id", h.GetSplitPayment)
	app.Post("/split-payments/:id/initiate", h.InitiatePayment)
	app.Post("/split-payments/:id/refund", h.RefundSplitPayment)
	app.Post("/payment-collections/capture", h.CaptureOrderSet)
	app.Post("/webhooks/gateway", h.GatewayWebhook)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, dto.APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out dto.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func errorCode(t *testing.T, resp dto.APIResponse) string {
	t.Helper()
	detail, ok := resp.Error.(map[string]any)
	require.True(t, ok, "error detail missing")
	code, _ := detail["code"].(string)
	return code
}

func TestFlowErrorStatus(t *testing.T) {
	unavailable := &services.GatewayError{Op: "capture", Kind: services.GatewayErrorUnavailable}
	declined := &services.GatewayError{Op: "capture", Kind: services.GatewayErrorAuthorization}

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"NotFound", businessflow.NewBusinessError("SPLIT_PAYMENT_NOT_FOUND", "missing", businessflow.ErrSplitPaymentNotFound), http.StatusNotFound, "SPLIT_PAYMENT_NOT_FOUND"},
		{"Conflict", businessflow.ErrLockNotAcquired, http.StatusConflict, "INTERNAL_ERROR"},
		{"Configuration", businessflow.ErrPriceAmountNotFound, http.StatusBadRequest, "INTERNAL_ERROR"},
		{"Invariant", businessflow.NewBusinessError("REFUND_FAILED", "too much", businessflow.ErrRefundExceedsRefundable), http.StatusUnprocessableEntity, "REFUND_FAILED"},
		{"GatewayRetryable", fmt.Errorf("%w: %w", businessflow.ErrGateway, unavailable), http.StatusServiceUnavailable, "INTERNAL_ERROR"},
		{"GatewayDeclined", fmt.Errorf("%w: %w", businessflow.ErrGateway, declined), http.StatusBadGateway, "INTERNAL_ERROR"},
		{"Unknown", fmt.Errorf("db down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newSettlementApp(&stubSettlementFlow{err: tt.err})
			status, resp := doJSON(t, app, http.MethodGet, "/split-payments/sp_1", "")
			assert.Equal(t, tt.status, status)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, errorCode(t, resp))
		})
	}
}

func TestInitiatePaymentHandler(t *testing.T) {
	t.Run("BindsPathID", func(t *testing.T) {
		flow := &stubSettlementFlow{}
		app := newSettlementApp(flow)

		status, resp := doJSON(t, app, http.MethodPost, "/split-payments/sp_9/initiate", `{"amount":"12.50","destination_account":"acct_1"}`)
		assert.Equal(t, http.StatusCreated, status)
		assert.True(t, resp.Success)
		require.NotNil(t, flow.lastInitiate)
		assert.Equal(t, "sp_9", flow.lastInitiate.SplitPaymentID)
		assert.Equal(t, "12.5", flow.lastInitiate.Amount.String())
	})

	t.Run("RejectsNonPositiveAmount", func(t *testing.T) {
		flow := &stubSettlementFlow{}
		app := newSettlementApp(flow)

		status, resp := doJSON(t, app, http.MethodPost, "/split-payments/sp_9/initiate", `{"amount":"0"}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, resp))
		assert.Nil(t, flow.lastInitiate)
	})
}

func TestRefundValidation(t *testing.T) {
	flow := &stubSettlementFlow{}
	app := newSettlementApp(flow)

	status, resp := doJSON(t, app, http.MethodPost, "/split-payments/sp_1/refund", `{"amount":0}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, resp.Success)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, resp))
	assert.Equal(t, 0, flow.calls)

	status, _ = doJSON(t, app, http.MethodPost, "/split-payments/sp_1/refund", `{"amount":300}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, flow.calls)
}

func TestCaptureOrderSetPartialFailure(t *testing.T) {
	flow := &stubSettlementFlow{captureSet: &dto.CaptureOrderSetResponse{
		PaymentCollectionID: "col_1",
		Results: []dto.CaptureResult{
			{SplitPaymentID: "a", Status: "captured"},
			{SplitPaymentID: "b", Status: "authorized", Error: "gateway unavailable"},
		},
		Failed: 1,
	}}
	app := newSettlementApp(flow)

	status, resp := doJSON(t, app, http.MethodPost, "/payment-collections/capture", `{"payment_collection_id":"col_1"}`)
	assert.Equal(t, http.StatusMultiStatus, status)
	assert.True(t, resp.Success)

	status, resp = doJSON(t, app, http.MethodPost, "/payment-collections/capture", `{}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, resp))
	assert.Equal(t, 1, flow.calls)
}

type stubAuditFlow struct {
	last *dto.ListAuditLogsRequest
	err  error
}

func (s *stubAuditFlow) ListAuditLogs(ctx context.Context, req *dto.ListAuditLogsRequest) (*dto.ListAuditLogsResponse, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &dto.ListAuditLogsResponse{Logs: []dto.AuditLogDTO{{ID: 1, Action: "payment_captured"}}, Page: 1, PageSize: 20}, nil
}

func TestListAuditLogsHandler(t *testing.T) {
	newApp := func(flow *stubAuditFlow) *fiber.App {
		h := NewAuditHandler(flow, slog.New(slog.NewTextHandler(io.Discard, nil)))
		app := fiber.New()
		app.Get("/admin/audit-logs", h.ListAuditLogs)
		return app
	}

	t.Run("BindsFilters", func(t *testing.T) {
		flow := &stubAuditFlow{}
		status, resp := doJSON(t, newApp(flow), http.MethodGet, "/admin/audit-logs?action=payment_captured&failed=true&page=2", "")
		assert.Equal(t, http.StatusOK, status)
		assert.True(t, resp.Success)
		require.NotNil(t, flow.last)
		require.NotNil(t, flow.last.Action)
		assert.Equal(t, "payment_captured", *flow.last.Action)
		assert.True(t, flow.last.Failed)
		assert.Equal(t, 2, flow.last.Page)
	})

	t.Run("EntityTypeNeedsEntityID", func(t *testing.T) {
		flow := &stubAuditFlow{}
		status, resp := doJSON(t, newApp(flow), http.MethodGet, "/admin/audit-logs?entity_type=commission_rule", "")
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, resp))
		assert.Nil(t, flow.last)
	})

	t.Run("UnknownSplitPayment", func(t *testing.T) {
		flow := &stubAuditFlow{err: businessflow.NewBusinessError("SPLIT_PAYMENT_NOT_FOUND", "missing", businessflow.ErrSplitPaymentNotFound)}
		status, _ := doJSON(t, newApp(flow), http.MethodGet, "/admin/audit-logs?split_payment_id=6f1c2d3e-4a5b-4c6d-8e7f-9a0b1c2d3e4f", "")
		assert.Equal(t, http.StatusNotFound, status)
	})
}

func TestGatewayWebhookHandler(t *testing.T) {
	t.Run("PassesRawBody", func(t *testing.T) {
		flow := &stubSettlementFlow{}
		app := newSettlementApp(flow)
		body := `{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`

		status, resp := doJSON(t, app, http.MethodPost, "/webhooks/gateway", body)
		assert.Equal(t, http.StatusOK, status)
		assert.True(t, resp.Success)
		assert.JSONEq(t, body, string(flow.lastPayload))
	})

	t.Run("LockedPaymentAsksForRedelivery", func(t *testing.T) {
		app := newSettlementApp(&stubSettlementFlow{err: businessflow.ErrLockNotAcquired})

		status, _ := doJSON(t, app, http.MethodPost, "/webhooks/gateway", `{}`)
		assert.Equal(t, http.StatusServiceUnavailable, status)
	})

	t.Run("InvariantViolationIsNotRetried", func(t *testing.T) {
		app := newSettlementApp(&stubSettlementFlow{err: businessflow.ErrCaptureAmountMismatch})

		status, _ := doJSON(t, app, http.MethodPost, "/webhooks/gateway", `{}`)
		assert.Equal(t, http.StatusUnprocessableEntity, status)
	})
}
