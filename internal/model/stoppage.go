package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StoppageType is the coarse grouping of a stoppage. It always agrees with the
// pool its category belongs to.
type StoppageType string

const (
	TypeOperational    StoppageType = "OPERATIONAL"
	TypeNonOperational StoppageType = "NON_OPERATIONAL"
)

// Valid reports whether t is one of the known stoppage types.
func (t StoppageType) Valid() bool {
	switch t {
	case TypeOperational, TypeNonOperational:
		return true
	}
	return false
}

// StoppageCategory classifies why a machine stopped.
type StoppageCategory string

// Operational pool.
const (
	CategoryCorrectiveMaintenance StoppageCategory = "CORRECTIVE_MAINTENANCE"
	CategoryPreventiveMaintenance StoppageCategory = "PREVENTIVE_MAINTENANCE"
	CategoryToolSetupChange       StoppageCategory = "TOOL_SETUP_CHANGE"
	CategoryMaterialShortage      StoppageCategory = "MATERIAL_SHORTAGE"
	CategoryQualityInspection     StoppageCategory = "QUALITY_INSPECTION"
	CategoryProcessAdjustment     StoppageCategory = "PROCESS_ADJUSTMENT"
	CategoryReplenishment         StoppageCategory = "REPLENISHMENT"
	CategoryCleaning              StoppageCategory = "CLEANING"
)

// Non-operational pool.
const (
	CategoryLunch               StoppageCategory = "LUNCH"
	CategoryRestroom            StoppageCategory = "RESTROOM"
	CategoryMeeting             StoppageCategory = "MEETING"
	CategoryTraining            StoppageCategory = "TRAINING"
	CategoryDailySafetyTalk     StoppageCategory = "DAILY_SAFETY_TALK"
	CategoryOtherNonOperational StoppageCategory = "OTHER_NON_OPERATIONAL"
)

// The pools are ordered; the first entry is the default category of its type.
var (
	operationalPool = []StoppageCategory{
		CategoryCorrectiveMaintenance,
		CategoryPreventiveMaintenance,
		CategoryToolSetupChange,
		CategoryMaterialShortage,
		CategoryQualityInspection,
		CategoryProcessAdjustment,
		CategoryReplenishment,
		CategoryCleaning,
	}
	nonOperationalPool = []StoppageCategory{
		CategoryLunch,
		CategoryRestroom,
		CategoryMeeting,
		CategoryTraining,
		CategoryDailySafetyTalk,
		CategoryOtherNonOperational,
	}
)

// CategoriesOf returns a copy of the category pool for the given type.
// Unknown types yield nil.
func CategoriesOf(t StoppageType) []StoppageCategory {
	var pool []StoppageCategory
	switch t {
	case TypeOperational:
		pool = operationalPool
	case TypeNonOperational:
		pool = nonOperationalPool
	default:
		return nil
	}
	out := make([]StoppageCategory, len(pool))
	copy(out, pool)
	return out
}

// Type returns the type whose pool contains c, and false if c is not a known category.
func (c StoppageCategory) Type() (StoppageType, bool) {
	switch c {
	case CategoryCorrectiveMaintenance, CategoryPreventiveMaintenance, CategoryToolSetupChange,
		CategoryMaterialShortage, CategoryQualityInspection, CategoryProcessAdjustment,
		CategoryReplenishment, CategoryCleaning:
		return TypeOperational, true
	case CategoryLunch, CategoryRestroom, CategoryMeeting, CategoryTraining,
		CategoryDailySafetyTalk, CategoryOtherNonOperational:
		return TypeNonOperational, true
	}
	return "", false
}

// Valid reports whether c is one of the fourteen known categories.
func (c StoppageCategory) Valid() bool {
	_, ok := c.Type()
	return ok
}

// StoppageEvent is one interval during which a machine was not running normally.
// An event with a nil EndTime is open.
type StoppageEvent struct {
	ID                  string           `gorm:"primaryKey;size:36" json:"id"`
	TenantID            string           `gorm:"size:64;not null;index" json:"tenantId"`
	MachineID           string           `gorm:"size:36;not null;index:idx_stoppage_machine_start,priority:1" json:"machineId"`
	StartTime           time.Time        `gorm:"not null;index:idx_stoppage_machine_start,priority:2" json:"startTime"`
	EndTime             *time.Time       `json:"endTime"`
	Reason              string           `gorm:"type:text;not null" json:"reason"`
	Team                *string          `gorm:"size:128" json:"team"`
	Note                *string          `gorm:"type:text" json:"note"`
	InterventionMinutes *int             `json:"interventionMinutes"`
	Type                StoppageType     `gorm:"size:32;not null" json:"type"`
	Category            StoppageCategory `gorm:"size:48;not null" json:"category"`
	// ConflictOverride marks rows allowed to be open next to another open event
	// of the same machine. The single-open partial index skips them.
	ConflictOverride bool      `gorm:"not null" json:"conflictOverride"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`

	// Associations
	Machine *Machine `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeCreate assigns a random ID when none was set.
func (e *StoppageEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// IsOpen reports whether the event has no end time yet.
func (e *StoppageEvent) IsOpen() bool {
	return e.EndTime == nil
}
