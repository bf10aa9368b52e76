package testing

import (
	"fmt"
	"math/rand"

	"github.com/amirphl/marketplace-settlement/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestRate creates a percentage rate
func (tf *TestFixtures) CreateTestRate(percentage string, includeTax bool) (*models.CommissionRate, error) {
	pct, err := decimal.NewFromString(percentage)
	if err != nil {
		return nil, err
	}
	rate := &models.CommissionRate{
		Type:           models.CommissionRateTypePercentage,
		PercentageRate: &pct,
		IncludeTax:     includeTax,
	}
	if err := tf.DB.DB.Create(rate).Error; err != nil {
		return nil, fmt.Errorf("failed to create test rate: %w", err)
	}
	return rate, nil
}

// CreateTestFixedRate creates a fixed rate together with the amount of its price set in the given currency
func (tf *TestFixtures) CreateTestFixedRate(currencyCode string, amount int64) (*models.CommissionRate, error) {
	priceSetID := "ps_" + uuid.NewString()[:8]
	if _, err := tf.CreateTestPriceAmount(priceSetID, currencyCode, amount); err != nil {
		return nil, err
	}
	rate := &models.CommissionRate{
		Type:       models.CommissionRateTypeFixed,
		PriceSetID: &priceSetID,
	}
	if err := tf.DB.DB.Create(rate).Error; err != nil {
		return nil, fmt.Errorf("failed to create fixed rate: %w", err)
	}
	return rate, nil
}

// CreateTestPriceAmount stores one currency amount of a price set
func (tf *TestFixtures) CreateTestPriceAmount(priceSetID, currencyCode string, amount int64) (*models.PriceAmount, error) {
	pa := &models.PriceAmount{
		PriceSetID:   priceSetID,
		CurrencyCode: currencyCode,
		Amount:       amount,
	}
	if err := tf.DB.DB.Create(pa).Error; err != nil {
		return nil, fmt.Errorf("failed to create price amount: %w", err)
	}
	return pa, nil
}

// CreateTestRule creates an active rule on the scope with a percentage rate
func (tf *TestFixtures) CreateTestRule(scope models.RuleScope, percentage string) (*models.CommissionRule, error) {
	rate, err := tf.CreateTestRate(percentage, false)
	if err != nil {
		return nil, err
	}
	rule := &models.CommissionRule{
		Name:     fmt.Sprintf("Test rule %s", scope.String()),
		RateID:   rate.ID,
		IsActive: true,
	}
	rule.SetScope(scope)
	if err := tf.DB.DB.Create(rule).Error; err != nil {
		return nil, fmt.Errorf("failed to create test rule: %w", err)
	}
	rule.Rate = rate
	return rule, nil
}

// CreateTestSplitPayment creates a pending split payment of a random order inside the collection
func (tf *TestFixtures) CreateTestSplitPayment(collectionID string, platformFee int64, mode *models.PlatformFeeMode) (*models.SplitOrderPayment, error) {
	payment := &models.SplitOrderPayment{
		OrderID:             fmt.Sprintf("order_%09d", rand.Intn(900000000)+100000000),
		Status:              models.SplitPaymentStatusPending,
		CurrencyCode:        "usd",
		PlatformFee:         platformFee,
		PlatformFeeMode:     mode,
		PaymentCollectionID: collectionID,
		CaptureMode:         models.CaptureModeAutomatic,
	}
	if err := tf.DB.DB.Create(payment).Error; err != nil {
		return nil, fmt.Errorf("failed to create split payment: %w", err)
	}
	return payment, nil
}

// CreateTestCheckout creates n split payments sharing one payment collection
func (tf *TestFixtures) CreateTestCheckout(n int) (string, []*models.SplitOrderPayment, error) {
	collectionID := "pay_col_" + uuid.NewString()[:8]
	payments := make([]*models.SplitOrderPayment, 0, n)
	for range n {
		p, err := tf.CreateTestSplitPayment(collectionID, 0, nil)
		if err != nil {
			return "", nil, err
		}
		payments = append(payments, p)
	}
	return collectionID, payments, nil
}
