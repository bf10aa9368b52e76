package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResolveCommissionRequest carries the ids of one line item
type ResolveCommissionRequest struct {
	ProductID         string `json:"product_id" validate:"max=255"`
	ProductTypeID     string `json:"product_type_id" validate:"max=255"`
	ProductCategoryID string `json:"product_category_id" validate:"max=255"`
	SellerID          string `json:"seller_id" validate:"max=255"`
}

// ResolveCommissionResponse names the rule that applies, if any
type ResolveCommissionResponse struct {
	Matched bool               `json:"matched"`
	Rule    *CommissionRuleDTO `json:"rule,omitempty"`
}

// CommissionLineItem is one priced order line
type CommissionLineItem struct {
	ItemLineID        string `json:"item_line_id" validate:"required,max=255"`
	ProductID         string `json:"product_id" validate:"max=255"`
	ProductTypeID     string `json:"product_type_id" validate:"max=255"`
	ProductCategoryID string `json:"product_category_id" validate:"max=255"`
	Subtotal          int64  `json:"subtotal" validate:"min=0"`  // smallest currency unit
	TaxTotal          int64  `json:"tax_total" validate:"min=0"` // smallest currency unit
}

// CreateCommissionLinesRequest asks for the legacy per line commissions of a placed order
type CreateCommissionLinesRequest struct {
	OrderID      string               `json:"order_id" validate:"required,max=255"`
	SellerID     string               `json:"seller_id" validate:"required,max=255"`
	CurrencyCode string               `json:"currency_code" validate:"required,len=3"`
	Items        []CommissionLineItem `json:"items" validate:"required,min=1,dive"`
}

// CommissionLineDTO is the API view of a commission line
type CommissionLineDTO struct {
	ItemLineID   string `json:"item_line_id"`
	RuleID       string `json:"rule_id,omitempty"`
	CurrencyCode string `json:"currency_code"`
	Value        int64  `json:"value"`
}

// CreateCommissionLinesResponse lists the lines written for the order
type CreateCommissionLinesResponse struct {
	OrderID string              `json:"order_id"`
	Skipped bool                `json:"skipped"` // order already carries a platform fee
	Lines   []CommissionLineDTO `json:"lines"`
	Total   int64               `json:"total"`
}

// CommissionRateInput describes the rate of a rule
type CommissionRateInput struct {
	Type           string           `json:"type" validate:"required,oneof=percentage fixed"`
	PercentageRate *decimal.Decimal `json:"percentage_rate,omitempty"`
	IncludeTax     bool             `json:"include_tax"`
	PriceSetID     *string          `json:"price_set_id,omitempty" validate:"omitempty,max=255"`
	MinPriceSetID  *string          `json:"min_price_set_id,omitempty" validate:"omitempty,max=255"`
	MaxPriceSetID  *string          `json:"max_price_set_id,omitempty" validate:"omitempty,max=255"`
}

// CommissionScopeInput names the subject of a rule; only the ids its reference needs are read
type CommissionScopeInput struct {
	Reference         string `json:"reference" validate:"required,oneof=seller+product product seller+product_type seller+product_category seller product_type product_category site"`
	SellerID          string `json:"seller_id,omitempty" validate:"max=255"`
	ProductID         string `json:"product_id,omitempty" validate:"max=255"`
	ProductTypeID     string `json:"product_type_id,omitempty" validate:"max=255"`
	ProductCategoryID string `json:"product_category_id,omitempty" validate:"max=255"`
}

// CreateCommissionRuleRequest creates a rule for a scope that has none
type CreateCommissionRuleRequest struct {
	Name     string               `json:"name" validate:"required,max=255"`
	Scope    CommissionScopeInput `json:"scope" validate:"required"`
	Rate     CommissionRateInput  `json:"rate" validate:"required"`
	IsActive *bool                `json:"is_active,omitempty"`
}

// UpdateCommissionRuleRequest changes the provided fields of a rule
type UpdateCommissionRuleRequest struct {
	Name     *string               `json:"name,omitempty" validate:"omitempty,max=255"`
	Scope    *CommissionScopeInput `json:"scope,omitempty"`
	Rate     *CommissionRateInput  `json:"rate,omitempty"`
	IsActive *bool                 `json:"is_active,omitempty"`
}

// ListCommissionRulesRequest filters the admin rule list
type ListCommissionRulesRequest struct {
	Reference   *string `query:"reference" validate:"omitempty,max=50"`
	ReferenceID *string `query:"reference_id" validate:"omitempty,max=512"`
	IsActive    *bool   `query:"is_active"`
	Page        int     `query:"page" validate:"omitempty,min=1"`
	PageSize    int     `query:"page_size" validate:"omitempty,min=1,max=100"`
}

// ListCommissionRulesResponse is one page of rules
type ListCommissionRulesResponse struct {
	Rules    []CommissionRuleDTO `json:"rules"`
	Total    int64               `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

// CommissionRateDTO is the API view of a commission rate
type CommissionRateDTO struct {
	ID             string           `json:"id"`
	Type           string           `json:"type"`
	PercentageRate *decimal.Decimal `json:"percentage_rate,omitempty"`
	IncludeTax     bool             `json:"include_tax"`
	PriceSetID     *string          `json:"price_set_id,omitempty"`
	MinPriceSetID  *string          `json:"min_price_set_id,omitempty"`
	MaxPriceSetID  *string          `json:"max_price_set_id,omitempty"`
}

// CommissionRuleDTO is the API view of a commission rule
type CommissionRuleDTO struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Reference   string             `json:"reference"`
	ReferenceID string             `json:"reference_id"`
	RefValue    string             `json:"ref_value"` // human readable scope
	IsActive    bool               `json:"is_active"`
	Rate        *CommissionRateDTO `json:"rate,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}
