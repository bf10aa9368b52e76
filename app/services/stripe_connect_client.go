package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amirphl/marketplace-settlement/utils"
	"github.com/google/go-querystring/query"
	"github.com/tidwall/gjson"
)

// StripeConnectClient talks to a Stripe compatible payment intents API using destination charges.
// Requests are form encoded; responses are read with gjson.
type StripeConnectClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

func NewStripeConnectClient(baseURL, apiKey string, timeout time.Duration) *StripeConnectClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &StripeConnectClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
		Timeout:    timeout,
	}
}

func (c *StripeConnectClient) Name() string { return "stripe-connect" }

type transferDataParams struct {
	Destination string `url:"destination"`
}

type paymentIntentParams struct {
	Amount               int64               `url:"amount"`
	Currency             string              `url:"currency"`
	CaptureMethod        string              `url:"capture_method"`
	ApplicationFeeAmount *int64              `url:"application_fee_amount,omitempty"`
	TransferData         *transferDataParams `url:"transfer_data,omitempty"`
	Description          string              `url:"description,omitempty"`
}

type refundParams struct {
	PaymentIntent        string `url:"payment_intent"`
	Amount               int64  `url:"amount"`
	RefundApplicationFee bool   `url:"refund_application_fee"`
}

// Initiate creates a payment intent. With a destination account the platform fee is
// withheld as application fee and the rest is transferred to the seller.
func (c *StripeConnectClient) Initiate(ctx context.Context, in InitiateInput) (*Intent, error) {
	if in.Amount <= 0 {
		return nil, &GatewayError{Op: "initiate", Kind: GatewayErrorInvalidRequest, Message: "amount must be positive"}
	}

	params := paymentIntentParams{
		Amount:        in.Amount,
		Currency:      utils.NormalizeCurrency(in.Currency),
		CaptureMethod: "automatic",
		Description:   in.Description,
	}
	if in.ManualCapture {
		params.CaptureMethod = "manual"
	}
	if in.DestinationAccount != "" {
		params.TransferData = &transferDataParams{Destination: in.DestinationAccount}
		if in.ApplicationFee > 0 {
			fee := in.ApplicationFee
			params.ApplicationFeeAmount = &fee
		}
	}

	form, err := query.Values(params)
	if err != nil {
		return nil, &GatewayError{Op: "initiate", Kind: GatewayErrorInvalidRequest, Message: "encode params", Err: err}
	}
	for k, v := range in.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	body, err := c.call(ctx, "initiate", "/v1/payment_intents", form, in.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return intentFromJSON(body), nil
}

// Capture collects an authorized intent. An intent that already succeeded is reported
// as captured with the amount it received.
func (c *StripeConnectClient) Capture(ctx context.Context, intentID string) (int64, error) {
	path := "/v1/payment_intents/" + url.PathEscape(intentID) + "/capture"
	status, body, err := c.send(ctx, path, url.Values{}, "capture-"+intentID)
	if err != nil {
		return 0, transportError("capture", err)
	}
	if status/100 == 2 {
		return gjson.GetBytes(body, "amount_received").Int(), nil
	}

	res := gjson.ParseBytes(body)
	if res.Get("error.code").String() == "payment_intent_unexpected_state" &&
		res.Get("error.payment_intent.status").String() == "succeeded" {
		return res.Get("error.payment_intent.amount_received").Int(), nil
	}
	return 0, responseError("capture", status, body)
}

// Refund returns part or all of a captured intent
func (c *StripeConnectClient) Refund(ctx context.Context, in RefundInput) error {
	if in.Amount <= 0 {
		return &GatewayError{Op: "refund", Kind: GatewayErrorInvalidRequest, Message: "amount must be positive"}
	}
	form, err := query.Values(refundParams{
		PaymentIntent:        in.IntentID,
		Amount:               in.Amount,
		RefundApplicationFee: in.ReclaimFee,
	})
	if err != nil {
		return &GatewayError{Op: "refund", Kind: GatewayErrorInvalidRequest, Message: "encode params", Err: err}
	}
	_, err = c.call(ctx, "refund", "/v1/refunds", form, in.IdempotencyKey)
	return err
}

func (c *StripeConnectClient) call(ctx context.Context, op, path string, form url.Values, idempotencyKey string) ([]byte, error) {
	status, body, err := c.send(ctx, path, form, idempotencyKey)
	if err != nil {
		return nil, transportError(op, err)
	}
	if status/100 != 2 {
		return nil, responseError(op, status, body)
	}
	return body, nil
}

// send posts a form and returns the raw response; only transport failures are errors
func (c *StripeConnectClient) send(ctx context.Context, path string, form url.Values, idempotencyKey string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func intentFromJSON(body []byte) *Intent {
	r := gjson.ParseBytes(body)
	return &Intent{
		ID:               r.Get("id").String(),
		Status:           r.Get("status").String(),
		Amount:           r.Get("amount").Int(),
		AmountCapturable: r.Get("amount_capturable").Int(),
		AmountReceived:   r.Get("amount_received").Int(),
		ClientSecret:     r.Get("client_secret").String(),
	}
}

func transportError(op string, err error) *GatewayError {
	msg := "request failed"
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		msg = "request timed out"
	}
	return &GatewayError{Op: op, Kind: GatewayErrorUnavailable, Message: msg, Err: err}
}

func responseError(op string, status int, body []byte) *GatewayError {
	res := gjson.ParseBytes(body)
	gerr := &GatewayError{
		Op:         op,
		Kind:       kindForStatus(status),
		StatusCode: status,
		Code:       res.Get("error.code").String(),
		Message:    res.Get("error.message").String(),
	}
	switch {
	case gerr.Code == "resource_missing":
		gerr.Kind = GatewayErrorNotFound
	case res.Get("error.type").String() == "card_error":
		gerr.Kind = GatewayErrorAuthorization
	}
	if gerr.Message == "" {
		gerr.Message = fmt.Sprintf("unexpected status %d", status)
	}
	return gerr
}
