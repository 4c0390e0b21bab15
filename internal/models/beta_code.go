package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Represents a shared early-access code. Codes are normalized (trimmed,
// uppercased) before storage and lookup, and are never deleted - admins
// disable them instead so redemption history stays intact.
type BetaCode struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Code        string     `gorm:"uniqueIndex;not null" json:"code"`
	Tier        string     `gorm:"default:'early'" json:"tier"`
	MaxUses     int        `gorm:"not null;default:1" json:"max_uses"`
	CurrentUses int        `gorm:"not null;default:0" json:"current_uses"`
	IsActive    bool       `gorm:"default:true" json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (b *BetaCode) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (BetaCode) TableName() string {
	return "beta_codes"
}

// Durable record that a specific identity consumed a specific code.
// The (code_id, redeemer_email) pair is unique - an identity may redeem
// a given code at most once.
type BetaRedemption struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	CodeID        uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_redemption_code_email,priority:1;not null" json:"code_id"`
	RedeemerEmail string    `gorm:"uniqueIndex:idx_redemption_code_email,priority:2;not null" json:"redeemer_email"`
	RedeemerName  string    `json:"redeemer_name,omitempty"`
	Tier          string    `json:"tier"`
	RedeemedAt    time.Time `gorm:"index" json:"redeemed_at"`
}

func (r *BetaRedemption) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (BetaRedemption) TableName() string {
	return "beta_redemptions"
}
