package downtime

import "downtime-backend/internal/model"

// Derive computes a machine's status from the categories of all of its open
// stoppage events. Priority, highest first:
//
//	CORRECTIVE_MAINTENANCE            -> MAINTENANCE
//	PREVENTIVE_MAINTENANCE            -> MAINTENANCE
//	any other operational category    -> STOPPED
//	any non-operational category      -> STOPPED
//	no open events                    -> RUNNING
//
// Unknown categories are ignored.
func Derive(open []model.StoppageCategory) model.MachineStatus {
	var corrective, preventive, operational, nonOperational bool
	for _, c := range open {
		switch c {
		case model.CategoryCorrectiveMaintenance:
			corrective = true
		case model.CategoryPreventiveMaintenance:
			preventive = true
		case model.CategoryToolSetupChange, model.CategoryMaterialShortage,
			model.CategoryQualityInspection, model.CategoryProcessAdjustment,
			model.CategoryReplenishment, model.CategoryCleaning:
			operational = true
		case model.CategoryLunch, model.CategoryRestroom, model.CategoryMeeting,
			model.CategoryTraining, model.CategoryDailySafetyTalk, model.CategoryOtherNonOperational:
			nonOperational = true
		}
	}

	switch {
	case corrective:
		return model.StatusMaintenance
	case preventive:
		return model.StatusMaintenance
	case operational:
		return model.StatusStopped
	case nonOperational:
		return model.StatusStopped
	}
	return model.StatusRunning
}
