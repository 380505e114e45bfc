package lifecycle

import (
	"context"
	"fmt"
	"time"

	"downtime-backend/internal/apperr"
	"downtime-backend/internal/model"
	"downtime-backend/internal/store"
)

// ConflictDecision is the outcome of an open-event check that did not block.
type ConflictDecision struct {
	// Blocking lists the other open events of the machine.
	Blocking []model.StoppageEvent
	// Overridden is true when Blocking is non-empty and the caller forced the command.
	Overridden bool
}

// CheckOpenConflict looks for open events of the machine other than excludeID.
// Without override, any such event yields a CONFLICT carrying code and a prompt
// asking the user to confirm. It must run inside the command's transaction,
// after the machine row is locked.
func CheckOpenConflict(ctx context.Context, tx store.Store, machine *model.Machine, excludeID string, override bool, code string) (ConflictDecision, error) {
	others, err := tx.OpenStoppages(ctx, machine.ID, excludeID)
	if err != nil {
		return ConflictDecision{}, err
	}
	if len(others) == 0 {
		return ConflictDecision{}, nil
	}
	if override {
		return ConflictDecision{Blocking: others, Overridden: true}, nil
	}

	first := others[0]
	return ConflictDecision{}, apperr.Conflict(code, conflictMessage(machine, first, len(others), code)).
		WithDetails(map[string]any{
			"conflict":       code,
			"open_event_id":  first.ID,
			"open_events":    len(others),
			"machine_id":     machine.ID,
			"override_param": "override",
		})
}

func conflictMessage(machine *model.Machine, open model.StoppageEvent, count int, code string) string {
	action := "open a new stoppage"
	if code == apperr.CodeOtherOpen {
		action = "reopen this stoppage"
	}
	since := open.StartTime.UTC().Format(time.RFC3339)
	if count > 1 {
		return fmt.Sprintf("Machine %s already has %d open stoppages (oldest: %q since %s). Confirm to %s anyway.",
			machine.Code, count, open.Reason, since, action)
	}
	return fmt.Sprintf("Machine %s already has an open stoppage (%q since %s). Confirm to %s anyway.",
		machine.Code, open.Reason, since, action)
}
