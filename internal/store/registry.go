package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"downtime-backend/internal/model"
)

// UpsertSectionsAndMachines stores the machine catalog of one tenant as reported
// by the registry. The cached status of existing machines is left untouched.
func (s *gormStore) UpsertSectionsAndMachines(ctx context.Context, tenantID string, items []RegistryItem) error {
	if len(items) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sectionIDs, err := upsertSections(tx, tenantID, items)
		if err != nil {
			return err
		}

		machines := make([]model.Machine, 0, len(items))
		seen := make(map[string]struct{}, len(items))
		for _, item := range items {
			if item.ID == "" || item.Code == "" {
				continue
			}
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}

			machine := model.Machine{
				ID:       item.ID,
				TenantID: tenantID,
				Code:     item.Code,
				Name:     item.Name,
			}
			if machine.Name == "" {
				machine.Name = item.Code
			}
			if id, ok := sectionIDs[item.Section]; ok {
				machine.SectionID = &id
			}
			machines = append(machines, machine)
		}
		if len(machines) == 0 {
			return nil
		}
		return batchUpsertMachines(tx, machines)
	})
}

func upsertSections(tx *gorm.DB, tenantID string, items []RegistryItem) (map[string]string, error) {
	byName := make(map[string]model.Section)
	for _, item := range items {
		if item.Section == "" {
			continue
		}
		if _, exists := byName[item.Section]; !exists {
			byName[item.Section] = model.Section{TenantID: tenantID, Name: item.Section}
		}
	}
	if len(byName) == 0 {
		return map[string]string{}, nil
	}

	names := make([]string, 0, len(byName))
	sections := make([]model.Section, 0, len(byName))
	for name, section := range byName {
		names = append(names, name)
		sections = append(sections, section)
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "name"}},
		DoNothing: true,
	}).Create(&sections).Error; err != nil {
		return nil, fmt.Errorf("batch upsert sections failed: %w", err)
	}

	// Generated IDs of conflicting rows are not the stored ones; read them back.
	var stored []model.Section
	if err := tx.Where("tenant_id = ? AND name IN ?", tenantID, names).Find(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve sections after upsert: %w", err)
	}
	ids := make(map[string]string, len(stored))
	for _, section := range stored {
		ids[section.Name] = section.ID
	}
	return ids, nil
}

func batchUpsertMachines(tx *gorm.DB, machines []model.Machine) error {
	if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"code", "name", "section_id", "updated_at"}),
	}).Create(&machines).Error; err != nil {
		return fmt.Errorf("batch upsert machines failed: %w", err)
	}
	return nil
}
