package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// ScopeKind is the storage name of a commission rule scope
type ScopeKind string

const (
	ScopeSellerProduct         ScopeKind = "seller+product"
	ScopeProduct               ScopeKind = "product"
	ScopeSellerProductType     ScopeKind = "seller+product_type"
	ScopeSellerProductCategory ScopeKind = "seller+product_category"
	ScopeSeller                ScopeKind = "seller"
	ScopeProductType           ScopeKind = "product_type"
	ScopeProductCategory       ScopeKind = "product_category"
	ScopeSite                  ScopeKind = "site"
)

// ScopePriority lists every scope kind from the highest to the lowest priority
var ScopePriority = []ScopeKind{
	ScopeSellerProduct,
	ScopeProduct,
	ScopeSellerProductType,
	ScopeSellerProductCategory,
	ScopeSeller,
	ScopeProductType,
	ScopeProductCategory,
	ScopeSite,
}

// ErrInvalidRuleScope is returned when a stored (reference, reference_id) pair cannot be decoded
var ErrInvalidRuleScope = errors.New("invalid commission rule scope")

// Priority returns the position of the kind in the waterfall (0 is highest) or -1 for unknown kinds
func (k ScopeKind) Priority() int {
	return lo.IndexOf(ScopePriority, k)
}

// Valid reports whether k is one of the known scope kinds
func (k ScopeKind) Valid() bool {
	return k.Priority() >= 0
}

// RuleScope identifies the subject a commission rule applies to.
// Only the ids required by Kind are meaningful.
type RuleScope struct {
	Kind              ScopeKind `json:"kind"`
	SellerID          string    `json:"seller_id,omitempty"`
	ProductID         string    `json:"product_id,omitempty"`
	ProductTypeID     string    `json:"product_type_id,omitempty"`
	ProductCategoryID string    `json:"product_category_id,omitempty"`
}

func SellerProductScope(sellerID, productID string) RuleScope {
	return RuleScope{Kind: ScopeSellerProduct, SellerID: sellerID, ProductID: productID}
}

func ProductScope(productID string) RuleScope {
	return RuleScope{Kind: ScopeProduct, ProductID: productID}
}

func SellerProductTypeScope(sellerID, productTypeID string) RuleScope {
	return RuleScope{Kind: ScopeSellerProductType, SellerID: sellerID, ProductTypeID: productTypeID}
}

func SellerProductCategoryScope(sellerID, productCategoryID string) RuleScope {
	return RuleScope{Kind: ScopeSellerProductCategory, SellerID: sellerID, ProductCategoryID: productCategoryID}
}

func SellerScope(sellerID string) RuleScope {
	return RuleScope{Kind: ScopeSeller, SellerID: sellerID}
}

func ProductTypeScope(productTypeID string) RuleScope {
	return RuleScope{Kind: ScopeProductType, ProductTypeID: productTypeID}
}

func ProductCategoryScope(productCategoryID string) RuleScope {
	return RuleScope{Kind: ScopeProductCategory, ProductCategoryID: productCategoryID}
}

func SiteScope() RuleScope {
	return RuleScope{Kind: ScopeSite}
}

// components returns the ids that make up the scope, in reference_id order
func (s RuleScope) components() []string {
	switch s.Kind {
	case ScopeSellerProduct:
		return []string{s.SellerID, s.ProductID}
	case ScopeProduct:
		return []string{s.ProductID}
	case ScopeSellerProductType:
		return []string{s.SellerID, s.ProductTypeID}
	case ScopeSellerProductCategory:
		return []string{s.SellerID, s.ProductCategoryID}
	case ScopeSeller:
		return []string{s.SellerID}
	case ScopeProductType:
		return []string{s.ProductTypeID}
	case ScopeProductCategory:
		return []string{s.ProductCategoryID}
	default:
		return nil
	}
}

// Complete reports whether every id the kind needs is present
func (s RuleScope) Complete() bool {
	if !s.Kind.Valid() {
		return false
	}
	return !lo.Contains(s.components(), "")
}

// Reference returns the stored reference column value
func (s RuleScope) Reference() string {
	return string(s.Kind)
}

// ReferenceID encodes the scope ids into the stored reference_id column.
// Components are joined with "+"; "%" and "+" inside an id are percent-escaped.
func (s RuleScope) ReferenceID() string {
	parts := lo.Map(s.components(), func(id string, _ int) string {
		return escapeScopeComponent(id)
	})
	return strings.Join(parts, "+")
}

func (s RuleScope) String() string {
	if s.Kind == ScopeSite {
		return string(ScopeSite)
	}
	return fmt.Sprintf("%s:%s", s.Kind, s.ReferenceID())
}

// ParseRuleScope decodes a stored (reference, reference_id) pair
func ParseRuleScope(reference, referenceID string) (RuleScope, error) {
	kind := ScopeKind(reference)
	if !kind.Valid() {
		return RuleScope{}, fmt.Errorf("%w: unknown reference %q", ErrInvalidRuleScope, reference)
	}

	if kind == ScopeSite {
		if referenceID != "" {
			return RuleScope{}, fmt.Errorf("%w: site scope must have an empty reference id", ErrInvalidRuleScope)
		}
		return SiteScope(), nil
	}

	raw := strings.Split(referenceID, "+")
	want := len(RuleScope{Kind: kind}.components())
	if len(raw) != want {
		return RuleScope{}, fmt.Errorf("%w: %s expects %d id(s), got %q", ErrInvalidRuleScope, kind, want, referenceID)
	}

	ids := lo.Map(raw, func(part string, _ int) string {
		return unescapeScopeComponent(part)
	})
	if lo.Contains(ids, "") {
		return RuleScope{}, fmt.Errorf("%w: empty id in %q", ErrInvalidRuleScope, referenceID)
	}

	var scope RuleScope
	switch kind {
	case ScopeSellerProduct:
		scope = SellerProductScope(ids[0], ids[1])
	case ScopeProduct:
		scope = ProductScope(ids[0])
	case ScopeSellerProductType:
		scope = SellerProductTypeScope(ids[0], ids[1])
	case ScopeSellerProductCategory:
		scope = SellerProductCategoryScope(ids[0], ids[1])
	case ScopeSeller:
		scope = SellerScope(ids[0])
	case ScopeProductType:
		scope = ProductTypeScope(ids[0])
	case ScopeProductCategory:
		scope = ProductCategoryScope(ids[0])
	}
	return scope, nil
}

var (
	scopeEscaper   = strings.NewReplacer("%", "%25", "+", "%2B")
	scopeUnescaper = strings.NewReplacer("%25", "%", "%2B", "+", "%2b", "+")
)

func escapeScopeComponent(id string) string {
	return scopeEscaper.Replace(id)
}

func unescapeScopeComponent(id string) string {
	return scopeUnescaper.Replace(id)
}

// CommissionCalculationContext carries the ids a line item is resolved against.
// An empty string means the axis has no value.
type CommissionCalculationContext struct {
	ProductID         string `json:"product_id"`
	ProductTypeID     string `json:"product_type_id"`
	ProductCategoryID string `json:"product_category_id"`
	SellerID          string `json:"seller_id"`
}

// CandidateScopes returns the scopes to try for this context, highest priority first.
// Scopes missing a required id are left out.
func (c CommissionCalculationContext) CandidateScopes() []RuleScope {
	all := []RuleScope{
		SellerProductScope(c.SellerID, c.ProductID),
		ProductScope(c.ProductID),
		SellerProductTypeScope(c.SellerID, c.ProductTypeID),
		SellerProductCategoryScope(c.SellerID, c.ProductCategoryID),
		SellerScope(c.SellerID),
		ProductTypeScope(c.ProductTypeID),
		ProductCategoryScope(c.ProductCategoryID),
		SiteScope(),
	}
	return lo.Filter(all, func(s RuleScope, _ int) bool {
		return s.Complete()
	})
}
