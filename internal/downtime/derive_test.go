package downtime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"downtime-backend/internal/model"
)

func TestDerive(t *testing.T) {
	testCases := []struct {
		name     string
		open     []model.StoppageCategory
		expected model.MachineStatus
	}{
		{"No open events", nil, model.StatusRunning},
		{"Empty set", []model.StoppageCategory{}, model.StatusRunning},
		{"Corrective beats lunch", []model.StoppageCategory{model.CategoryCorrectiveMaintenance, model.CategoryLunch}, model.StatusMaintenance},
		{"Lunch before corrective", []model.StoppageCategory{model.CategoryLunch, model.CategoryCorrectiveMaintenance}, model.StatusMaintenance},
		{"Tool setup stops", []model.StoppageCategory{model.CategoryToolSetupChange}, model.StatusStopped},
		{"Preventive beats tool setup", []model.StoppageCategory{model.CategoryPreventiveMaintenance, model.CategoryToolSetupChange}, model.StatusMaintenance},
		{"Non-operational only", []model.StoppageCategory{model.CategoryDailySafetyTalk}, model.StatusStopped},
		{"Duplicates", []model.StoppageCategory{model.CategoryLunch, model.CategoryLunch}, model.StatusStopped},
		{"Unknown category ignored", []model.StoppageCategory{"UNKNOWN"}, model.StatusRunning},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Derive(tc.open))
		})
	}
}

func TestDeriveIsPure(t *testing.T) {
	open := []model.StoppageCategory{model.CategoryLunch, model.CategoryPreventiveMaintenance}
	first := Derive(open)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Derive(open))
	}
	assert.Equal(t, []model.StoppageCategory{model.CategoryLunch, model.CategoryPreventiveMaintenance}, open, "input must not be modified")
}

func TestDeriveCoversEveryCategory(t *testing.T) {
	for _, typ := range []model.StoppageType{model.TypeOperational, model.TypeNonOperational} {
		for _, c := range model.CategoriesOf(typ) {
			assert.NotEqual(t, model.StatusRunning, Derive([]model.StoppageCategory{c}), "category %s", c)
		}
	}
}
