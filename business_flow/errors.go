// Package businessflow contains the commission resolution and split payment settlement use cases
package businessflow

import (
	"errors"
	"fmt"

	"github.com/amirphl/marketplace-settlement/app/services"
)

// Error categories. Each specific error below wraps exactly one of them.
var (
	ErrConfiguration      = errors.New("configuration error")
	ErrNotFound           = errors.New("not found")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrGateway            = errors.New("gateway error")
	ErrConflict           = errors.New("conflict")
)

// Business flow error constants
var (
	// Commission errors
	ErrPriceAmountNotFound     = fmt.Errorf("%w: price set has no amount in currency", ErrConfiguration)
	ErrPlatformFeeModeRequired = fmt.Errorf("%w: platform fee mode is required when platform fee is positive", ErrConfiguration)
	ErrInvalidPlatformFee      = fmt.Errorf("%w: platform fee must not be negative", ErrConfiguration)
	ErrCommissionRuleNotFound  = fmt.Errorf("%w: commission rule", ErrNotFound)
	ErrCommissionRuleExists    = fmt.Errorf("%w: a commission rule already exists for this scope", ErrConflict)

	// Split payment errors
	ErrSplitPaymentNotFound     = fmt.Errorf("%w: split payment", ErrNotFound)
	ErrSplitPaymentExists       = fmt.Errorf("%w: order already has a split payment in another payment collection", ErrConflict)
	ErrPaymentAlreadyInitiated  = fmt.Errorf("%w: payment intent already opened for this split payment", ErrConflict)
	ErrNoPaymentIntent          = fmt.Errorf("%w: split payment has no payment intent", ErrInvariantViolation)
	ErrInvalidAmount            = fmt.Errorf("%w: amount must be positive", ErrInvariantViolation)
	ErrCaptureExceedsAuthorized = fmt.Errorf("%w: capture exceeds authorized amount", ErrInvariantViolation)
	ErrCaptureAmountMismatch    = fmt.Errorf("%w: capture replay with a different amount", ErrInvariantViolation)
	ErrRefundExceedsRefundable  = fmt.Errorf("%w: refund exceeds refundable amount", ErrInvariantViolation)
	ErrIllegalTransition        = fmt.Errorf("%w: illegal status transition", ErrInvariantViolation)
	ErrLedgerInconsistent       = fmt.Errorf("%w: ledger amounts are inconsistent", ErrInvariantViolation)

	// Concurrency errors
	ErrLockNotAcquired = fmt.Errorf("%w: split payment is locked by another operation", ErrConflict)
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

// gatewayErr tags a gateway failure with the gateway category, keeping the GatewayError reachable
func gatewayErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrGateway, err)
}

func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}

func IsGatewayError(err error) bool {
	return errors.Is(err, ErrGateway)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsPriceAmountNotFound(err error) bool {
	return errors.Is(err, ErrPriceAmountNotFound)
}

func IsSplitPaymentNotFound(err error) bool {
	return errors.Is(err, ErrSplitPaymentNotFound)
}

func IsCommissionRuleNotFound(err error) bool {
	return errors.Is(err, ErrCommissionRuleNotFound)
}

func IsLockNotAcquired(err error) bool {
	return errors.Is(err, ErrLockNotAcquired)
}

// IsRetryable reports whether repeating the same call later may succeed
func IsRetryable(err error) bool {
	if IsLockNotAcquired(err) {
		return true
	}
	if gerr, ok := services.AsGatewayError(err); ok {
		return gerr.Retryable()
	}
	return false
}

// BusinessErrorCode returns the code of the outermost BusinessError in the chain
func BusinessErrorCode(err error) string {
	var berr *BusinessError
	if errors.As(err, &berr) {
		return berr.Code
	}
	return ""
}
