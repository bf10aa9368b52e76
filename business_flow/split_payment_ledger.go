package businessflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amirphl/marketplace-settlement/models"
	"github.com/amirphl/marketplace-settlement/repository"
	"github.com/amirphl/marketplace-settlement/utils"
	"github.com/google/uuid"
)

// Ledger transitions. Each validates before touching p and reports whether p changed.
// A replay that matches the current state is a no-op, not an error.

// AuthorizePayment records that the gateway holds amount for p.
// Once p is captured a late authorization is a no-op whatever its amount.
func AuthorizePayment(p *models.SplitOrderPayment, amount int64) (bool, error) {
	switch p.Status {
	case models.SplitPaymentStatusPending, models.SplitPaymentStatusFailed, models.SplitPaymentStatusAuthorized:
	default:
		return false, nil
	}

	if amount <= 0 {
		return false, fmt.Errorf("%w: authorize %d", ErrInvalidAmount, amount)
	}
	if p.Status == models.SplitPaymentStatusAuthorized {
		if p.AuthorizedAmount == amount {
			return false, nil
		}
		p.AuthorizedAmount = amount
		return true, nil
	}

	p.AuthorizedAmount = amount
	p.Status = models.SplitPaymentStatusAuthorized
	return true, nil
}

// CapturePayment records that amount of the authorized funds was collected
func CapturePayment(p *models.SplitOrderPayment, amount int64) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("%w: capture %d", ErrInvalidAmount, amount)
	}

	switch p.Status {
	case models.SplitPaymentStatusAuthorized:
		if amount > p.AuthorizedAmount {
			return false, fmt.Errorf("%w: capture %d, authorized %d", ErrCaptureExceedsAuthorized, amount, p.AuthorizedAmount)
		}
		p.CapturedAmount = amount
		p.Status = models.SplitPaymentStatusCaptured
		return true, nil
	case models.SplitPaymentStatusCaptured, models.SplitPaymentStatusPartiallyRefunded, models.SplitPaymentStatusRefunded:
		if amount == p.CapturedAmount {
			return false, nil
		}
		return false, fmt.Errorf("%w: capture %d, already captured %d", ErrCaptureAmountMismatch, amount, p.CapturedAmount)
	default:
		return false, fmt.Errorf("%w: capture from %s", ErrIllegalTransition, p.Status)
	}
}

// RefundPayment returns amount of the captured funds. full is true once nothing is left to refund.
func RefundPayment(p *models.SplitOrderPayment, amount int64) (full bool, err error) {
	if amount <= 0 {
		return false, fmt.Errorf("%w: refund %d", ErrInvalidAmount, amount)
	}
	if !p.IsCaptured() {
		return false, fmt.Errorf("%w: refund from %s", ErrIllegalTransition, p.Status)
	}
	if amount > p.RefundableAmount() {
		return false, fmt.Errorf("%w: refund %d, refundable %d", ErrRefundExceedsRefundable, amount, p.RefundableAmount())
	}

	p.RefundedAmount += amount
	full = p.RefundedAmount >= p.CapturedAmount
	if full {
		p.Status = models.SplitPaymentStatusRefunded
	} else {
		p.Status = models.SplitPaymentStatusPartiallyRefunded
	}
	return full, nil
}

// FailPayment marks a payment the gateway declined
func FailPayment(p *models.SplitOrderPayment) (bool, error) {
	switch p.Status {
	case models.SplitPaymentStatusPending, models.SplitPaymentStatusAuthorized:
		p.Status = models.SplitPaymentStatusFailed
		return true, nil
	default:
		// already failed, or a stale failure for an intent that has since been captured
		return false, nil
	}
}

// CheckLedgerInvariants verifies the amounts of p are consistent with each other
func CheckLedgerInvariants(p *models.SplitOrderPayment) error {
	switch {
	case p.CapturedAmount < 0 || p.CapturedAmount > p.AuthorizedAmount:
		return fmt.Errorf("%w: captured %d, authorized %d", ErrLedgerInconsistent, p.CapturedAmount, p.AuthorizedAmount)
	case p.RefundedAmount < 0 || p.RefundedAmount > p.CapturedAmount:
		return fmt.Errorf("%w: refunded %d, captured %d", ErrLedgerInconsistent, p.RefundedAmount, p.CapturedAmount)
	case p.PlatformFee < 0:
		return fmt.Errorf("%w: platform fee %d", ErrLedgerInconsistent, p.PlatformFee)
	case p.PlatformFee > 0 && p.PlatformFeeMode == nil:
		return fmt.Errorf("%w: platform fee without mode", ErrLedgerInconsistent)
	}
	return nil
}

// CreateSplitPaymentInput opens the ledger row of one seller order
type CreateSplitPaymentInput struct {
	OrderID             string
	PaymentCollectionID string
	CurrencyCode        string
	PlatformFee         PlatformFeeInput
}

// IntentBinding is what InitiatePayment records on the ledger once the gateway opened an intent
type IntentBinding struct {
	IntentID           string
	DestinationAccount *string
	CaptureMode        models.CaptureMode
}

// SplitPaymentLedger persists split payment ledger transitions
type SplitPaymentLedger interface {
	Create(ctx context.Context, in CreateSplitPaymentInput, metadata *ClientMetadata) (*models.SplitOrderPayment, error)
	Get(ctx context.Context, id string) (*models.SplitOrderPayment, error)
	BindIntent(ctx context.Context, id uint, binding IntentBinding, metadata *ClientMetadata) (*models.SplitOrderPayment, error)
	ApplyAuthorize(ctx context.Context, id uint, amount int64, metadata *ClientMetadata) (*models.SplitOrderPayment, bool, error)
	ApplyCapture(ctx context.Context, id uint, amount int64, metadata *ClientMetadata) (*models.SplitOrderPayment, bool, error)
	// ApplyRefund returns whether the refund emptied the refundable balance
	ApplyRefund(ctx context.Context, id uint, amount int64, metadata *ClientMetadata) (*models.SplitOrderPayment, bool, error)
	ApplyFailure(ctx context.Context, id uint, metadata *ClientMetadata) (*models.SplitOrderPayment, bool, error)
}

// SplitPaymentLedgerImpl implements SplitPaymentLedger on the split payment repository
type SplitPaymentLedgerImpl struct {
	paymentRepo repository.SplitOrderPaymentRepository
	txManager   repository.TxManager
	audit       auditor
	logger      *slog.Logger
}

func NewSplitPaymentLedger(
	paymentRepo repository.SplitOrderPaymentRepository,
	auditRepo repository.AuditLogRepository,
	txManager repository.TxManager,
	logger *slog.Logger,
) SplitPaymentLedger {
	return &SplitPaymentLedgerImpl{
		paymentRepo: paymentRepo,
		txManager:   txManager,
		audit:       auditor{repo: auditRepo, logger: logger},
		logger:      logger,
	}
}

// Create opens the ledger row. Repeating the call for the same order and payment collection returns the existing row.
func (l *SplitPaymentLedgerImpl) Create(ctx context.Context, in CreateSplitPaymentInput, metadata *ClientMetadata) (*models.SplitOrderPayment, error) {
	if in.OrderID == "" || in.PaymentCollectionID == "" {
		return nil, fmt.Errorf("%w: order id and payment collection id are required", ErrConfiguration)
	}
	currency := utils.NormalizeCurrency(in.CurrencyCode)
	if len(currency) != 3 {
		return nil, fmt.Errorf("%w: invalid currency code %q", ErrConfiguration, in.CurrencyCode)
	}
	if err := ValidatePlatformFee(in.PlatformFee); err != nil {
		return nil, err
	}

	var payment *models.SplitOrderPayment
	created := false
	err := l.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := l.paymentRepo.ByOrderID(txCtx, in.OrderID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.PaymentCollectionID != in.PaymentCollectionID {
				return fmt.Errorf("%w: order %s", ErrSplitPaymentExists, in.OrderID)
			}
			payment = existing
			return nil
		}

		payment = &models.SplitOrderPayment{
			OrderID:             in.OrderID,
			Status:              models.SplitPaymentStatusPending,
			CurrencyCode:        currency,
			PlatformFee:         in.PlatformFee.Amount,
			PlatformFeeMode:     in.PlatformFee.Mode,
			PaymentCollectionID: in.PaymentCollectionID,
			CaptureMode:         models.CaptureModeAutomatic,
		}
		if err := l.paymentRepo.Save(txCtx, payment); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		l.audit.record(ctx, models.AuditEntitySplitPayment, payment.ID, models.AuditActionSplitPaymentCreated,
			fmt.Sprintf("Split payment created for order %s, platform fee %d %s", payment.OrderID, payment.PlatformFee, payment.CurrencyCode),
			nil, metadata)
	}
	return payment, nil
}

// Get finds a split payment by its public id
func (l *SplitPaymentLedgerImpl) Get(ctx context.Context, id string) (*models.SplitOrderPayment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSplitPaymentNotFound, id)
	}
	payment, err := l.paymentRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: %s", ErrSplitPaymentNotFound, id)
	}
	return payment, nil
}

func (l *SplitPaymentLedgerImpl) BindIntent(ctx context.Context, id uint, binding IntentBinding, metadata *ClientMetadata) (*models.SplitOrderPayment, error) {
	payment, _, err := l.apply(ctx, id, models.AuditActionPaymentInitiated, metadata, func(p *models.SplitOrderPayment) (bool, error) {
		if p.PaymentIntentID != nil && *p.PaymentIntentID != binding.IntentID {
			return false, fmt.Errorf("%w: intent %s", ErrPaymentAlreadyInitiated, *p.PaymentIntentID)
		}
		p.PaymentIntentID = &binding.IntentID
		p.DestinationAccount = binding.DestinationAccount
		p.CaptureMode = binding.CaptureMode
		return true, nil
	})
	return payment, err
}

func (l *SplitPaymentLedgerImpl) ApplyAuthorize(ctx context.Context, id uint, amount int64, metadata *ClientMetadata) (*models.SplitOrderPayment, bool, error) {
	return l.apply(ctx, id, models.AuditActionPaymentAuthorized, metadata, func(p *models.SplitOrderPayment) (bool, error) {
		return AuthorizePayment(p, amount)
	})
}

func (l *SplitPaymentLedgerImpl) ApplyCapture(ctx context.Context, id uint, amount int64, metadata *ClientMetadata) (*models.SplitOrderPayment, bool, error) {
	return l.apply(ctx, id, models.AuditActionPaymentCaptured, metadata, func(p *models.SplitOrderPayment) (bool, error) {
		return CapturePayment(p, amount)
	})
}

func (l *SplitPaymentLedgerImpl) ApplyRefund(ctx context.Context, id uint, amount int64, metadata *ClientMetadata) (*models.SplitOrderPayment, bool, error) {
	full := false
	payment, _, err := l.apply(ctx, id, models.AuditActionPaymentRefunded, metadata, func(p *models.SplitOrderPayment) (bool, error) {
		var err error
		full, err = RefundPayment(p, amount)
		return err == nil, err
	})
	return payment, full, err
}

func (l *SplitPaymentLedgerImpl) ApplyFailure(ctx context.Context, id uint, metadata *ClientMetadata) (*models.SplitOrderPayment, bool, error) {
	return l.apply(ctx, id, models.AuditActionPaymentFailed, metadata, FailPayment)
}

// apply runs one transition on the locked row and persists it when it changed.
// Nothing is written when the transition or the invariant check fails.
func (l *SplitPaymentLedgerImpl) apply(
	ctx context.Context,
	id uint,
	action string,
	metadata *ClientMetadata,
	transition func(p *models.SplitOrderPayment) (bool, error),
) (*models.SplitOrderPayment, bool, error) {
	var payment *models.SplitOrderPayment
	changed := false

	err := l.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		p, err := l.paymentRepo.ByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: id %d", ErrSplitPaymentNotFound, id)
		}

		changed, err = transition(p)
		if err != nil {
			return err
		}
		if changed {
			if err := CheckLedgerInvariants(p); err != nil {
				return err
			}
			if err := l.paymentRepo.Update(txCtx, p); err != nil {
				return err
			}
		}
		payment = p
		return nil
	})
	if err != nil {
		if IsInvariantViolation(err) {
			l.logger.Warn("split payment transition rejected", "split_payment_id", id, "action", action, "error", err)
			l.audit.record(ctx, models.AuditEntitySplitPayment, id, action, "Split payment transition rejected", err, metadata)
		}
		return nil, false, err
	}

	if changed {
		l.audit.record(ctx, models.AuditEntitySplitPayment, payment.ID, action,
			fmt.Sprintf("Split payment %s: status %s, authorized %d, captured %d, refunded %d",
				payment.UUID.String(), payment.Status, payment.AuthorizedAmount, payment.CapturedAmount, payment.RefundedAmount),
			nil, metadata)
	}
	return payment, changed, nil
}
