package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MachineStatus is the displayed operating status of a machine. It is derived
// from the machine's open stoppage events and only cached on the row.
type MachineStatus string

const (
	StatusRunning     MachineStatus = "RUNNING"
	StatusStopped     MachineStatus = "STOPPED"
	StatusMaintenance MachineStatus = "MAINTENANCE"
)

// Machine represents a physical asset on the shop floor.
type Machine struct {
	ID        string        `gorm:"primaryKey;size:36" json:"id"`
	TenantID  string        `gorm:"size:64;not null;uniqueIndex:idx_machine_tenant_code" json:"tenantId"`
	Code      string        `gorm:"size:64;not null;uniqueIndex:idx_machine_tenant_code" json:"code"`
	Name      string        `gorm:"size:256;not null" json:"name"`
	Status    MachineStatus `gorm:"size:16;not null" json:"status"`
	SectionID *string       `gorm:"size:36;index" json:"sectionId"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`

	// Associations
	Section *Section `gorm:"constraint:OnDelete:SET NULL" json:"section,omitempty"`
}

// BeforeCreate fills in the ID and starts new machines as RUNNING.
func (m *Machine) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = StatusRunning
	}
	return nil
}
