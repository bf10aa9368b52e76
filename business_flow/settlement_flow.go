package businessflow

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/amirphl/marketplace-settlement/app/dto"
	"github.com/amirphl/marketplace-settlement/app/services"
	"github.com/amirphl/marketplace-settlement/models"
	"github.com/amirphl/marketplace-settlement/repository"
	"github.com/amirphl/marketplace-settlement/utils"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
)

// Webhook outcomes
const (
	WebhookOutcomeApplied       = "applied"
	WebhookOutcomeUnchanged     = "unchanged"
	WebhookOutcomeDuplicate     = "duplicate"
	WebhookOutcomeUnknownIntent = "unknown_intent"
	WebhookOutcomeIgnored       = "ignored"
)

const defaultCaptureConcurrency = 4

// SettlementFlow handles split payments against the payment gateway
type SettlementFlow interface {
	CreateSplitPayment(ctx context.Context, req *dto.CreateSplitPaymentRequest, metadata *ClientMetadata) (*dto.SplitPaymentDTO, error)
	GetSplitPayment(ctx context.Context, id string) (*dto.SplitPaymentDTO, error)
	InitiatePayment(ctx context.Context, req *dto.InitiatePaymentRequest, metadata *ClientMetadata) (*dto.InitiatePaymentResponse, error)
	HandleWebhook(ctx context.Context, payload []byte, metadata *ClientMetadata) (*dto.WebhookResponse, error)
	CaptureSplitPayment(ctx context.Context, id string, metadata *ClientMetadata) (*dto.SplitPaymentDTO, error)
	CaptureOrderSet(ctx context.Context, req *dto.CaptureOrderSetRequest, metadata *ClientMetadata) (*dto.CaptureOrderSetResponse, error)
	RefundSplitPayment(ctx context.Context, id string, req *dto.RefundSplitPaymentRequest, metadata *ClientMetadata) (*dto.RefundSplitPaymentResponse, error)
	CalculatePayoutForOrder(ctx context.Context, orderID string) (*dto.PayoutResponse, error)
}

// SettlementFlowImpl implements the settlement business flow
type SettlementFlowImpl struct {
	ledger             SplitPaymentLedger
	paymentRepo        repository.SplitOrderPaymentRepository
	eventRepo          repository.GatewayEventRepository
	lineRepo           repository.CommissionLineRepository
	gateway            services.SettlementGateway
	locker             PaymentLocker
	txManager          repository.TxManager
	logger             *slog.Logger
	captureConcurrency int
}

// NewSettlementFlow creates a new settlement flow instance
func NewSettlementFlow(
	ledger SplitPaymentLedger,
	paymentRepo repository.SplitOrderPaymentRepository,
	eventRepo repository.GatewayEventRepository,
	lineRepo repository.CommissionLineRepository,
	gateway services.SettlementGateway,
	locker PaymentLocker,
	txManager repository.TxManager,
	logger *slog.Logger,
) SettlementFlow {
	return &SettlementFlowImpl{
		ledger:             ledger,
		paymentRepo:        paymentRepo,
		eventRepo:          eventRepo,
		lineRepo:           lineRepo,
		gateway:            gateway,
		locker:             locker,
		txManager:          txManager,
		logger:             logger,
		captureConcurrency: defaultCaptureConcurrency,
	}
}

// CreateSplitPayment opens the ledger row of one seller order with the fee checkout computed
func (s *SettlementFlowImpl) CreateSplitPayment(ctx context.Context, req *dto.CreateSplitPaymentRequest, metadata *ClientMetadata) (*dto.SplitPaymentDTO, error) {
	in := CreateSplitPaymentInput{
		OrderID:             req.OrderID,
		PaymentCollectionID: req.PaymentCollectionID,
		CurrencyCode:        req.CurrencyCode,
		PlatformFee: PlatformFeeInput{
			Amount: utils.ToSmallestUnit(req.PlatformFee, req.CurrencyCode),
		},
	}
	if req.PlatformFeeMode != nil {
		in.PlatformFee.Mode = utils.ToPtr(models.PlatformFeeMode(*req.PlatformFeeMode))
	}

	payment, err := s.ledger.Create(ctx, in, metadata)
	if err != nil {
		return nil, NewBusinessError("SPLIT_PAYMENT_CREATION_FAILED", "Failed to create split payment", err)
	}

	out := ToSplitPaymentDTO(payment)
	return &out, nil
}

func (s *SettlementFlowImpl) GetSplitPayment(ctx context.Context, id string) (*dto.SplitPaymentDTO, error) {
	payment, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, NewBusinessError("SPLIT_PAYMENT_LOOKUP_FAILED", "Failed to lookup split payment", err)
	}
	out := ToSplitPaymentDTO(payment)
	return &out, nil
}

// InitiatePayment opens a gateway payment intent and binds it to the split payment
func (s *SettlementFlowImpl) InitiatePayment(ctx context.Context, req *dto.InitiatePaymentRequest, metadata *ClientMetadata) (*dto.InitiatePaymentResponse, error) {
	payment, err := s.ledger.Get(ctx, req.SplitPaymentID)
	if err != nil {
		return nil, NewBusinessError("SPLIT_PAYMENT_LOOKUP_FAILED", "Failed to lookup split payment", err)
	}

	unlock, err := s.locker.Lock(ctx, splitPaymentLockKey(payment.ID))
	if err != nil {
		return nil, NewBusinessError("PAYMENT_INITIATION_FAILED", "Split payment is busy", err)
	}
	defer unlock()

	payment, err = s.reload(ctx, payment.ID)
	if err != nil {
		return nil, NewBusinessError("PAYMENT_INITIATION_FAILED", "Failed to reload split payment", err)
	}
	if payment.PaymentIntentID != nil {
		return nil, NewBusinessError("PAYMENT_INITIATION_FAILED", "Payment already initiated", ErrPaymentAlreadyInitiated)
	}

	amount := utils.ToSmallestUnit(req.Amount, payment.CurrencyCode)
	if amount <= 0 {
		return nil, NewBusinessError("PAYMENT_INITIATION_FAILED", "Invalid payment amount", fmt.Errorf("%w: %d", ErrInvalidAmount, amount))
	}

	destination := ""
	if req.DestinationAccount != nil {
		destination = strings.TrimSpace(*req.DestinationAccount)
	}

	// only on_top fees travel to the gateway, and only with a destination to withhold them from
	var applicationFee int64
	if destination != "" && payment.PlatformFee > 0 && payment.PlatformFeeMode != nil && *payment.PlatformFeeMode == models.PlatformFeeModeOnTop {
		applicationFee = payment.PlatformFee
	}
	if applicationFee > amount {
		err := fmt.Errorf("%w: application fee %d exceeds charge %d", ErrConfiguration, applicationFee, amount)
		return nil, NewBusinessError("PAYMENT_INITIATION_FAILED", "Platform fee exceeds the charge", err)
	}

	captureMode := models.CaptureModeAutomatic
	if req.RequiresApproval {
		captureMode = models.CaptureModeManual
	}

	gatewayMetadata := map[string]string{
		"split_payment_id":      payment.UUID.String(),
		"order_id":              payment.OrderID,
		"payment_collection_id": payment.PaymentCollectionID,
		"platform_fee":          strconv.FormatInt(payment.PlatformFee, 10),
	}
	if payment.PlatformFeeMode != nil {
		gatewayMetadata["platform_fee_mode"] = string(*payment.PlatformFeeMode)
	}

	intent, err := s.gateway.Initiate(ctx, services.InitiateInput{
		Amount:             amount,
		Currency:           payment.CurrencyCode,
		DestinationAccount: destination,
		ApplicationFee:     applicationFee,
		ManualCapture:      captureMode == models.CaptureModeManual,
		Description:        req.Description,
		Metadata:           gatewayMetadata,
		IdempotencyKey:     "initiate-" + payment.UUID.String(),
	})
	observeGatewayCall("initiate", err)
	if err != nil {
		s.logger.Error("payment initiation failed", "split_payment_id", payment.UUID.String(), "gateway", s.gateway.Name(), "error", err)
		return nil, NewBusinessError("PAYMENT_INITIATION_FAILED", "Gateway rejected the payment", gatewayErr(err))
	}

	binding := IntentBinding{
		IntentID:    intent.ID,
		CaptureMode: captureMode,
	}
	if destination != "" {
		binding.DestinationAccount = &destination
	}
	bound, err := s.ledger.BindIntent(ctx, payment.ID, binding, metadata)
	if err != nil {
		s.logger.Error("failed to record payment intent", "split_payment_id", payment.UUID.String(), "intent_id", intent.ID, "error", err)
		return nil, NewBusinessError("PAYMENT_INITIATION_FAILED", "Failed to record payment intent", err)
	}
	payment = bound

	s.logger.Info("payment initiated",
		"split_payment_id", payment.UUID.String(),
		"intent_id", intent.ID,
		"amount", amount,
		"application_fee", applicationFee,
	)

	return &dto.InitiatePaymentResponse{
		SplitPayment:   ToSplitPaymentDTO(payment),
		IntentID:       intent.ID,
		ClientSecret:   intent.ClientSecret,
		ApplicationFee: applicationFee,
	}, nil
}

// HandleWebhook applies one gateway event to the ledger. Redelivered events are recognised and skipped.
func (s *SettlementFlowImpl) HandleWebhook(ctx context.Context, payload []byte, metadata *ClientMetadata) (*dto.WebhookResponse, error) {
	res := s.gateway.ParseWebhook(payload)
	resp := &dto.WebhookResponse{
		Action:   string(res.Action),
		IntentID: res.IntentID,
	}

	if res.Action == services.WebhookActionIgnored {
		resp.Outcome = WebhookOutcomeIgnored
		webhookEventsTotal.WithLabelValues(resp.Action, resp.Outcome).Inc()
		return resp, nil
	}

	payment, err := s.paymentRepo.ByPaymentIntentID(ctx, res.IntentID)
	if err != nil {
		return nil, NewBusinessError("WEBHOOK_PROCESSING_FAILED", "Failed to lookup split payment", err)
	}
	if payment == nil {
		s.logger.Warn("webhook for unknown payment intent", "intent_id", res.IntentID, "event_type", res.EventType, "event_id", res.EventID)
		resp.Outcome = WebhookOutcomeUnknownIntent
		webhookEventsTotal.WithLabelValues(resp.Action, resp.Outcome).Inc()
		return resp, nil
	}
	resp.SplitPaymentID = payment.UUID.String()

	unlock, err := s.locker.Lock(ctx, splitPaymentLockKey(payment.ID))
	if err != nil {
		return nil, NewBusinessError("WEBHOOK_PROCESSING_FAILED", "Split payment is busy", err)
	}
	defer unlock()

	auditCtx, audits := withAuditBatch(ctx)
	err = s.txManager.WithTransaction(auditCtx, func(txCtx context.Context) error {
		seen, err := s.eventRepo.ByIntentAndType(txCtx, res.IntentID, res.EventType)
		if err != nil {
			return err
		}
		if seen != nil {
			resp.Outcome = WebhookOutcomeDuplicate
			return nil
		}

		changed, err := s.applyWebhook(txCtx, payment.ID, res, metadata)
		if err != nil {
			return err
		}
		resp.Outcome = WebhookOutcomeUnchanged
		if changed {
			resp.Outcome = WebhookOutcomeApplied
		}

		return s.eventRepo.Save(txCtx, &models.GatewayEvent{
			SplitOrderPaymentID: payment.ID,
			IntentID:            res.IntentID,
			EventType:           res.EventType,
			Action:              string(res.Action),
			Amount:              res.Amount,
			ProcessedAt:         utils.UTCNow(),
		})
	})
	audits.flush(ctx, err == nil)
	if err != nil {
		webhookEventsTotal.WithLabelValues(resp.Action, "error").Inc()
		s.logger.Error("webhook processing failed",
			"split_payment_id", resp.SplitPaymentID,
			"intent_id", res.IntentID,
			"event_type", res.EventType,
			"error", err,
		)
		return nil, NewBusinessError("WEBHOOK_PROCESSING_FAILED", "Failed to apply gateway event", err)
	}

	webhookEventsTotal.WithLabelValues(resp.Action, resp.Outcome).Inc()
	s.logger.Info("webhook processed",
		"split_payment_id", resp.SplitPaymentID,
		"intent_id", res.IntentID,
		"event_type", res.EventType,
		"outcome", resp.Outcome,
	)
	return resp, nil
}

func (s *SettlementFlowImpl) applyWebhook(ctx context.Context, id uint, res services.WebhookResult, metadata *ClientMetadata) (bool, error) {
	switch res.Action {
	case services.WebhookActionAuthorized:
		_, changed, err := s.ledger.ApplyAuthorize(ctx, id, res.Amount, metadata)
		return changed, err

	case services.WebhookActionCaptured:
		current, err := s.paymentRepo.ByIDForUpdate(ctx, id)
		if err != nil {
			return false, err
		}
		if current == nil {
			return false, fmt.Errorf("%w: id %d", ErrSplitPaymentNotFound, id)
		}
		authorized := false
		// automatic capture can skip the authorization event
		if current.Status == models.SplitPaymentStatusPending || current.Status == models.SplitPaymentStatusFailed {
			if _, authorized, err = s.ledger.ApplyAuthorize(ctx, id, res.Amount, metadata); err != nil {
				return false, err
			}
		}
		_, captured, err := s.ledger.ApplyCapture(ctx, id, res.Amount, metadata)
		return authorized || captured, err

	case services.WebhookActionFailed:
		_, changed, err := s.ledger.ApplyFailure(ctx, id, metadata)
		return changed, err
	}
	return false, nil
}

// CaptureSplitPayment collects the authorized funds of one split payment
func (s *SettlementFlowImpl) CaptureSplitPayment(ctx context.Context, id string, metadata *ClientMetadata) (*dto.SplitPaymentDTO, error) {
	payment, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, NewBusinessError("SPLIT_PAYMENT_LOOKUP_FAILED", "Failed to lookup split payment", err)
	}

	payment, err = s.captureOne(ctx, payment.ID, metadata)
	if err != nil {
		return nil, NewBusinessError("CAPTURE_FAILED", "Failed to capture split payment", err)
	}

	out := ToSplitPaymentDTO(payment)
	return &out, nil
}

// CaptureOrderSet captures every split payment of one checkout concurrently
func (s *SettlementFlowImpl) CaptureOrderSet(ctx context.Context, req *dto.CaptureOrderSetRequest, metadata *ClientMetadata) (*dto.CaptureOrderSetResponse, error) {
	payments, err := s.paymentRepo.ListByPaymentCollectionID(ctx, req.PaymentCollectionID)
	if err != nil {
		return nil, NewBusinessError("CAPTURE_FAILED", "Failed to list split payments", err)
	}
	if len(payments) == 0 {
		err := fmt.Errorf("%w: payment collection %s", ErrSplitPaymentNotFound, req.PaymentCollectionID)
		return nil, NewBusinessError("CAPTURE_FAILED", "No split payments for payment collection", err)
	}

	resp := &dto.CaptureOrderSetResponse{PaymentCollectionID: req.PaymentCollectionID}

	if req.RequiresApproval {
		resp.Skipped = true
		resp.Results = lo.Map(payments, func(p *models.SplitOrderPayment, _ int) dto.CaptureResult {
			return captureResult(p)
		})
		s.logger.Info("order set capture deferred until approval", "payment_collection_id", req.PaymentCollectionID, "payments", len(payments))
		return resp, nil
	}

	p := pool.NewWithResults[dto.CaptureResult]().WithMaxGoroutines(s.captureConcurrency)
	for _, payment := range payments {
		p.Go(func() dto.CaptureResult {
			captured, err := s.captureOne(ctx, payment.ID, metadata)
			if err != nil {
				result := captureResult(payment)
				result.Error = err.Error()
				return result
			}
			return captureResult(captured)
		})
	}
	resp.Results = p.Wait()

	slices.SortFunc(resp.Results, func(a, b dto.CaptureResult) int {
		return strings.Compare(a.OrderID, b.OrderID)
	})
	resp.Failed = lo.CountBy(resp.Results, func(r dto.CaptureResult) bool {
		return r.Error != ""
	})

	s.logger.Info("order set captured",
		"payment_collection_id", req.PaymentCollectionID,
		"payments", len(payments),
		"failed", resp.Failed,
	)
	return resp, nil
}

// captureOne captures a single split payment under its lock. An already captured payment is returned as is.
func (s *SettlementFlowImpl) captureOne(ctx context.Context, id uint, metadata *ClientMetadata) (*models.SplitOrderPayment, error) {
	unlock, err := s.locker.Lock(ctx, splitPaymentLockKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	payment, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.IsCaptured() {
		return payment, nil
	}
	if payment.Status != models.SplitPaymentStatusAuthorized {
		return nil, fmt.Errorf("%w: capture from %s", ErrIllegalTransition, payment.Status)
	}
	if payment.PaymentIntentID == nil {
		return nil, ErrNoPaymentIntent
	}

	amount, err := s.gateway.Capture(ctx, *payment.PaymentIntentID)
	observeGatewayCall("capture", err)
	if err != nil {
		s.logger.Error("gateway capture failed", "split_payment_id", payment.UUID.String(), "intent_id", *payment.PaymentIntentID, "error", err)
		return nil, gatewayErr(err)
	}

	payment, _, err = s.ledger.ApplyCapture(ctx, id, amount, metadata)
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// RefundSplitPayment returns part or all of a captured split payment.
// The ledger is checked before the gateway is called and written only after the gateway accepted the refund.
func (s *SettlementFlowImpl) RefundSplitPayment(ctx context.Context, id string, req *dto.RefundSplitPaymentRequest, metadata *ClientMetadata) (*dto.RefundSplitPaymentResponse, error) {
	payment, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, NewBusinessError("SPLIT_PAYMENT_LOOKUP_FAILED", "Failed to lookup split payment", err)
	}

	unlock, err := s.locker.Lock(ctx, splitPaymentLockKey(payment.ID))
	if err != nil {
		return nil, NewBusinessError("REFUND_FAILED", "Split payment is busy", err)
	}
	defer unlock()

	payment, err = s.reload(ctx, payment.ID)
	if err != nil {
		return nil, NewBusinessError("REFUND_FAILED", "Failed to reload split payment", err)
	}

	preview := *payment
	full, err := RefundPayment(&preview, req.Amount)
	if err != nil {
		s.logger.Warn("refund rejected", "split_payment_id", payment.UUID.String(), "amount", req.Amount, "refundable", payment.RefundableAmount(), "error", err)
		return nil, NewBusinessError("REFUND_FAILED", "Refund rejected", err)
	}
	if payment.PaymentIntentID == nil {
		return nil, NewBusinessError("REFUND_FAILED", "Split payment has no payment intent", ErrNoPaymentIntent)
	}

	err = s.gateway.Refund(ctx, services.RefundInput{
		IntentID:       *payment.PaymentIntentID,
		Amount:         req.Amount,
		ReclaimFee:     full,
		IdempotencyKey: fmt.Sprintf("refund-%s-%d-%d", payment.UUID.String(), payment.RefundedAmount, req.Amount),
	})
	observeGatewayCall("refund", err)
	if err != nil {
		s.logger.Error("gateway refund failed", "split_payment_id", payment.UUID.String(), "amount", req.Amount, "error", err)
		return nil, NewBusinessError("REFUND_FAILED", "Gateway rejected the refund", gatewayErr(err))
	}

	payment, full, err = s.ledger.ApplyRefund(ctx, payment.ID, req.Amount, metadata)
	if err != nil {
		s.logger.Error("gateway refunded but ledger write failed", "split_payment_id", id, "amount", req.Amount, "error", err)
		return nil, NewBusinessError("REFUND_FAILED", "Failed to record refund", err)
	}

	kind := "partial"
	if full {
		kind = "full"
	}
	refundsTotal.WithLabelValues(kind).Inc()

	return &dto.RefundSplitPaymentResponse{
		SplitPayment: ToSplitPaymentDTO(payment),
		Refunded:     req.Amount,
		FullRefund:   full,
		FeeReclaimed: full,
	}, nil
}

// CalculatePayoutForOrder returns what the seller of an order is owed
func (s *SettlementFlowImpl) CalculatePayoutForOrder(ctx context.Context, orderID string) (*dto.PayoutResponse, error) {
	payment, err := s.paymentRepo.ByOrderID(ctx, orderID)
	if err != nil {
		return nil, NewBusinessError("PAYOUT_CALCULATION_FAILED", "Failed to lookup split payment", err)
	}
	if payment == nil {
		err := fmt.Errorf("%w: order %s", ErrSplitPaymentNotFound, orderID)
		return nil, NewBusinessError("PAYOUT_CALCULATION_FAILED", "Order has no split payment", err)
	}

	var commissionTotal int64
	if payment.PlatformFee == 0 {
		lines, err := s.lineRepo.ByOrderID(ctx, orderID)
		if err != nil {
			return nil, NewBusinessError("PAYOUT_CALCULATION_FAILED", "Failed to load commission lines", err)
		}
		commissionTotal = lo.SumBy(lines, func(l *models.CommissionLine) int64 {
			return l.Value
		})
	}

	payout := CalculatePayout(payment, commissionTotal)
	if payout.Amount < 0 {
		s.logger.Warn("negative seller payout",
			"order_id", orderID,
			"split_payment_id", payment.UUID.String(),
			"captured", payout.Captured,
			"refunded", payout.Refunded,
			"fee", payout.Fee,
			"payout", payout.Amount,
		)
	}

	return &dto.PayoutResponse{
		OrderID:        orderID,
		SplitPaymentID: payment.UUID.String(),
		CurrencyCode:   payment.CurrencyCode,
		CapturedAmount: payout.Captured,
		RefundedAmount: payout.Refunded,
		Fee:            payout.Fee,
		FeeSource:      payout.FeeSource,
		Payout:         payout.Amount,
	}, nil
}

func (s *SettlementFlowImpl) reload(ctx context.Context, id uint) (*models.SplitOrderPayment, error) {
	payment, err := s.paymentRepo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: id %d", ErrSplitPaymentNotFound, id)
	}
	return payment, nil
}

func captureResult(p *models.SplitOrderPayment) dto.CaptureResult {
	return dto.CaptureResult{
		SplitPaymentID: p.UUID.String(),
		OrderID:        p.OrderID,
		Status:         string(p.Status),
		CapturedAmount: p.CapturedAmount,
	}
}
