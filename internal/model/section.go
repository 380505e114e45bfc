package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Section groups machines of one tenant, e.g. a production line or hall.
type Section struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	TenantID  string    `gorm:"size:64;not null;uniqueIndex:idx_section_tenant_name" json:"tenantId"`
	Name      string    `gorm:"size:128;not null;uniqueIndex:idx_section_tenant_name" json:"name"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`

	// Associations
	Machines []Machine `gorm:"foreignKey:SectionID" json:"-"`
}

func (s *Section) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
