package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// A member allocated to a pricing wave. Email is unique across all waves -
// duplicate signups are rejected at the persistence layer, not just in
// application code.
type WaveMember struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Name      string    `json:"name,omitempty"`
	Wave      int       `gorm:"index;not null" json:"wave"`
	PriceUSD  float64   `json:"price_usd"`
	CreatedAt time.Time `json:"created_at"`
}

func (m *WaveMember) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func (WaveMember) TableName() string {
	return "wave_members"
}
