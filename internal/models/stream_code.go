package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StreamCode is a short shareable code that resolves to a StreamDescriptor
// until it expires or is deactivated.
type StreamCode struct {
	ID         string           `gorm:"primaryKey;size:36" json:"id"`
	Code       string           `gorm:"size:8;not null;uniqueIndex" json:"code"`
	Descriptor StreamDescriptor `gorm:"not null" json:"descriptor"`
	IsActive   bool             `gorm:"not null;default:true;index:idx_stream_codes_live,priority:1" json:"is_active"`
	CreatedAt  time.Time        `json:"created_at"`
	ExpiresAt  time.Time        `gorm:"not null;index:idx_stream_codes_live,priority:2" json:"expires_at"`
}

// BeforeCreate assigns a UUID primary key when none is set.
func (c *StreamCode) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// IsLive reports whether the code still resolves at now.
func (c *StreamCode) IsLive(now time.Time) bool {
	return c.IsActive && c.ExpiresAt.After(now)
}

// Clone returns a copy of c whose descriptor shares no memory with c's.
func (c *StreamCode) Clone() *StreamCode {
	out := *c
	out.Descriptor = c.Descriptor.Clone()
	return &out
}
