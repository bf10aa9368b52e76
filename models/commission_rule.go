package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CommissionRule binds a commission rate to a scope.
// At most one non-deleted rule exists per (reference, reference_id).
type CommissionRule struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	Name string    `gorm:"size:255;not null" json:"name"`

	Reference   ScopeKind `gorm:"type:varchar(50);not null;index:uk_commission_rules_scope,unique,where:deleted_at IS NULL" json:"reference"`
	ReferenceID string    `gorm:"size:512;not null;index:uk_commission_rules_scope,unique,where:deleted_at IS NULL" json:"reference_id"`

	RateID uint            `gorm:"not null;index" json:"rate_id"`
	Rate   *CommissionRate `gorm:"foreignKey:RateID;constraint:OnDelete:RESTRICT" json:"rate,omitempty"`

	IsActive bool `gorm:"not null;index" json:"is_active"`

	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// BeforeCreate ensures UUID is set
func (r *CommissionRule) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	return nil
}

// Scope decodes the stored reference pair
func (r *CommissionRule) Scope() (RuleScope, error) {
	return ParseRuleScope(string(r.Reference), r.ReferenceID)
}

// SetScope stores the scope in the reference columns
func (r *CommissionRule) SetScope(scope RuleScope) {
	r.Reference = scope.Kind
	r.ReferenceID = scope.ReferenceID()
}

// TableName specifies the table name for GORM
func (CommissionRule) TableName() string {
	return "commission_rules"
}

// CommissionRuleFilter represents filter criteria for commission rule queries
type CommissionRuleFilter struct {
	ID          *uint      `json:"id,omitempty"`
	UUID        *uuid.UUID `json:"uuid,omitempty"`
	Name        *string    `json:"name,omitempty"`
	Reference   *ScopeKind `json:"reference,omitempty"`
	ReferenceID *string    `json:"reference_id,omitempty"`
	RateID      *uint      `json:"rate_id,omitempty"`
	IsActive    *bool      `json:"is_active,omitempty"`
}
