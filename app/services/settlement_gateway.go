package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// WebhookAction is what a gateway event means for the split payment ledger
type WebhookAction string

const (
	WebhookActionAuthorized WebhookAction = "authorized"
	WebhookActionCaptured   WebhookAction = "captured"
	WebhookActionFailed     WebhookAction = "failed"
	WebhookActionIgnored    WebhookAction = "ignored"
)

// InitiateInput describes the payment intent to open for one split payment
type InitiateInput struct {
	Amount             int64 // smallest currency unit, what the customer is charged
	Currency           string
	DestinationAccount string // connected seller account; empty for platform-only charges
	ApplicationFee     int64  // withheld from the destination transfer; only sent with a destination
	ManualCapture      bool
	Description        string
	Metadata           map[string]string
	IdempotencyKey     string
}

// Intent is the gateway's view of a payment intent
type Intent struct {
	ID               string
	Status           string
	Amount           int64
	AmountCapturable int64
	AmountReceived   int64
	ClientSecret     string
}

// RefundInput describes a refund against a payment intent
type RefundInput struct {
	IntentID       string
	Amount         int64
	ReclaimFee     bool // give the application fee back to the customer as well
	IdempotencyKey string
}

// WebhookResult is the ledger relevant content of a webhook delivery
type WebhookResult struct {
	Action    WebhookAction
	EventID   string
	EventType string
	IntentID  string
	Amount    int64
	Metadata  map[string]string
}

// SettlementGateway is the contract the settlement engine needs from a card payment gateway
type SettlementGateway interface {
	Name() string
	Initiate(ctx context.Context, in InitiateInput) (*Intent, error)
	// Capture collects an authorized intent and returns the captured amount
	Capture(ctx context.Context, intentID string) (int64, error)
	Refund(ctx context.Context, in RefundInput) error
	// ParseWebhook never fails; anything it cannot use is reported as WebhookActionIgnored
	ParseWebhook(payload []byte) WebhookResult
}

// GatewayErrorKind classifies gateway failures by what the caller can do about them
type GatewayErrorKind string

const (
	GatewayErrorAuthorization  GatewayErrorKind = "authorization"   // declined or not permitted, caller must change something
	GatewayErrorNotFound       GatewayErrorKind = "not_found"       // unknown intent or account
	GatewayErrorUnavailable    GatewayErrorKind = "unavailable"     // timeout, network, rate limit or 5xx
	GatewayErrorInvalidRequest GatewayErrorKind = "invalid_request" // rejected parameters or state
)

// GatewayError is returned by every SettlementGateway call that fails
type GatewayError struct {
	Op         string
	Kind       GatewayErrorKind
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("gateway %s failed (%s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(", status %d", e.StatusCode)
	}
	if e.Code != "" {
		msg += ", code " + e.Code
	}
	msg += ")"
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same call may succeed later without changes
func (e *GatewayError) Retryable() bool {
	return e.Kind == GatewayErrorUnavailable
}

// AsGatewayError extracts a GatewayError from an error chain
func AsGatewayError(err error) (*GatewayError, bool) {
	var gerr *GatewayError
	if errors.As(err, &gerr) {
		return gerr, true
	}
	return nil, false
}

// kindForStatus maps an HTTP status of a gateway response to an error kind
func kindForStatus(status int) GatewayErrorKind {
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return GatewayErrorUnavailable
	case status == http.StatusNotFound:
		return GatewayErrorNotFound
	case status == http.StatusPaymentRequired || status == http.StatusUnauthorized || status == http.StatusForbidden:
		return GatewayErrorAuthorization
	default:
		return GatewayErrorInvalidRequest
	}
}
