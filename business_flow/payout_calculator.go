package businessflow

import "github.com/amirphl/marketplace-settlement/models"

// Fee sources of a payout
const (
	FeeSourcePlatformFee     = "platform_fee"
	FeeSourceCommissionLines = "commission_lines"
)

// Payout is the seller net of one split payment
type Payout struct {
	Captured  int64
	Refunded  int64
	Fee       int64
	FeeSource string
	Amount    int64 // may be negative, never clamped
}

// CalculatePayout subtracts refunds and the platform fee from the captured amount.
// commissionTotal is only used when the payment carries no platform fee.
func CalculatePayout(p *models.SplitOrderPayment, commissionTotal int64) Payout {
	out := Payout{
		Captured:  p.CapturedAmount,
		Refunded:  p.RefundedAmount,
		Fee:       commissionTotal,
		FeeSource: FeeSourceCommissionLines,
	}
	if p.PlatformFee > 0 {
		out.Fee = p.PlatformFee
		out.FeeSource = FeeSourcePlatformFee
	}
	out.Amount = out.Captured - out.Refunded - out.Fee
	return out
}
