// Package lifecycle implements the stoppage commands. Each command mutates
// stoppage events and re-derives the owning machine's status in one
// transaction, with the machine row locked for its whole duration.
package lifecycle

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"downtime-backend/internal/apperr"
	"downtime-backend/internal/downtime"
	"downtime-backend/internal/model"
	"downtime-backend/internal/store"
	"downtime-backend/internal/tenant"
)

// Notifier is told about machine status changes after they are committed.
type Notifier interface {
	Notify(machineID string, status model.MachineStatus)
}

// Service is the stoppage lifecycle orchestrator.
type Service struct {
	store    store.Store
	notifier Notifier
	logger   *zap.Logger
	Now      func() time.Time
}

// NewService creates a lifecycle service. notifier may be nil.
func NewService(s store.Store, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    s,
		notifier: notifier,
		logger:   logger,
		Now:      time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// statusChange records a committed status transition to announce.
type statusChange struct {
	machineID string
	status    model.MachineStatus
	changed   bool
}

func (s *Service) announce(change statusChange) {
	if !change.changed || s.notifier == nil {
		return
	}
	s.notifier.Notify(change.machineID, change.status)
}

// OpenInput holds the parameters of Open.
type OpenInput struct {
	MachineID string
	Reason    string
	Team      *string
	Note      *string
	StartTime *time.Time // defaults to now
	Type      string     // raw, resolved against Category
	Category  string     // raw
	Override  bool
}

// Open records a new open stoppage for a machine.
func (s *Service) Open(ctx context.Context, scope tenant.Scope, in OpenInput) (*model.StoppageEvent, error) {
	const op = "open stoppage"

	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, apperr.Validation("reason is required").WithOp(op)
	}
	if in.MachineID == "" {
		return nil, apperr.Validation("machine id is required").WithOp(op)
	}
	start := s.now()
	if in.StartTime != nil {
		if in.StartTime.IsZero() {
			return nil, apperr.Validation("start time is invalid").WithOp(op)
		}
		start = in.StartTime.UTC()
	}
	typ, category := downtime.Resolve(in.Type, in.Category, "", "")

	var event *model.StoppageEvent
	var change statusChange
	var decision ConflictDecision
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		machine, err := tx.LockMachine(ctx, scope, in.MachineID)
		if err != nil {
			return err
		}

		decision, err = CheckOpenConflict(ctx, tx, machine, "", in.Override, apperr.CodeAlreadyOpen)
		if err != nil {
			return err
		}

		event = &model.StoppageEvent{
			TenantID:         machine.TenantID,
			MachineID:        machine.ID,
			StartTime:        start,
			Reason:           reason,
			Team:             trimmed(in.Team),
			Note:             trimmed(in.Note),
			Type:             typ,
			Category:         category,
			ConflictOverride: decision.Overridden,
		}
		if err := tx.CreateStoppage(ctx, event); err != nil {
			return err
		}

		change, err = recompute(ctx, tx, machine)
		return err
	})
	if err != nil {
		return nil, classify(op, err, apperr.CodeAlreadyOpen)
	}

	s.logOverride(event, decision)
	s.logger.Info("stoppage opened",
		zap.String("stoppage_id", event.ID),
		zap.String("machine_id", event.MachineID),
		zap.String("category", string(event.Category)),
		zap.Bool("override", event.ConflictOverride),
		zap.String("status", string(change.status)))
	s.announce(change)
	return event, nil
}

// Close sets the end time of an open stoppage, default now.
func (s *Service) Close(ctx context.Context, scope tenant.Scope, id string, endTime *time.Time) (*model.StoppageEvent, error) {
	const op = "close stoppage"

	end := s.now()
	if endTime != nil {
		if endTime.IsZero() {
			return nil, apperr.Validation("end time is invalid").WithOp(op)
		}
		end = endTime.UTC()
	}

	var event *model.StoppageEvent
	var change statusChange
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		var machine *model.Machine
		var err error
		event, machine, err = lockEvent(ctx, tx, scope, id)
		if err != nil {
			return err
		}
		if !event.IsOpen() {
			return apperr.AlreadyClosed("stoppage is already closed")
		}

		event.EndTime = &end
		event.InterventionMinutes = interventionMinutes(event.StartTime, end)
		if err := tx.SaveStoppage(ctx, event); err != nil {
			return err
		}

		change, err = recompute(ctx, tx, machine)
		return err
	})
	if err != nil {
		return nil, classify(op, err, "")
	}

	s.logger.Info("stoppage closed",
		zap.String("stoppage_id", event.ID),
		zap.String("machine_id", event.MachineID),
		zap.Intp("intervention_minutes", event.InterventionMinutes),
		zap.String("status", string(change.status)))
	s.announce(change)
	return event, nil
}

// Reopen clears the end time of a closed stoppage. Reopening an open
// stoppage succeeds without changes.
func (s *Service) Reopen(ctx context.Context, scope tenant.Scope, id string, override bool) (*model.StoppageEvent, error) {
	const op = "reopen stoppage"

	var event *model.StoppageEvent
	var change statusChange
	var decision ConflictDecision
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		var machine *model.Machine
		var err error
		event, machine, err = lockEvent(ctx, tx, scope, id)
		if err != nil {
			return err
		}
		if event.IsOpen() {
			return nil
		}

		decision, err = CheckOpenConflict(ctx, tx, machine, event.ID, override, apperr.CodeOtherOpen)
		if err != nil {
			return err
		}

		event.EndTime = nil
		event.InterventionMinutes = nil
		event.ConflictOverride = decision.Overridden
		if err := tx.SaveStoppage(ctx, event); err != nil {
			return err
		}

		change, err = recompute(ctx, tx, machine)
		return err
	})
	if err != nil {
		return nil, classify(op, err, apperr.CodeOtherOpen)
	}

	s.logOverride(event, decision)
	if change.status != "" {
		s.logger.Info("stoppage reopened",
			zap.String("stoppage_id", event.ID),
			zap.String("machine_id", event.MachineID),
			zap.Bool("override", event.ConflictOverride),
			zap.String("status", string(change.status)))
	}
	s.announce(change)
	return event, nil
}

// EndTimeEdit describes a change to the end time. Set without Value reopens the event.
type EndTimeEdit struct {
	Set   bool
	Value *time.Time
}

// EditInput holds the fields of Edit. Nil fields are left unchanged.
type EditInput struct {
	Reason    *string
	Team      *string // empty string clears
	Note      *string // empty string clears
	StartTime *time.Time
	EndTime   EndTimeEdit
	Type      *string
	Category  *string
}

// Edit changes a stoppage in place. It does not run the open-event check: an
// editor may reopen an event next to another open one.
func (s *Service) Edit(ctx context.Context, scope tenant.Scope, id string, in EditInput) (*model.StoppageEvent, error) {
	const op = "edit stoppage"

	if in.Reason != nil && strings.TrimSpace(*in.Reason) == "" {
		return nil, apperr.Validation("reason must not be empty").WithOp(op)
	}
	if in.StartTime != nil && in.StartTime.IsZero() {
		return nil, apperr.Validation("start time is invalid").WithOp(op)
	}
	if in.EndTime.Value != nil && in.EndTime.Value.IsZero() {
		return nil, apperr.Validation("end time is invalid").WithOp(op)
	}

	var event *model.StoppageEvent
	var change statusChange
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		var machine *model.Machine
		var err error
		event, machine, err = lockEvent(ctx, tx, scope, id)
		if err != nil {
			return err
		}
		wasOpen := event.IsOpen()

		if in.Reason != nil {
			event.Reason = strings.TrimSpace(*in.Reason)
		}
		if in.Team != nil {
			event.Team = trimmed(in.Team)
		}
		if in.Note != nil {
			event.Note = trimmed(in.Note)
		}
		if in.StartTime != nil {
			event.StartTime = in.StartTime.UTC()
		}
		if in.EndTime.Set {
			if in.EndTime.Value == nil {
				event.EndTime = nil
			} else {
				end := in.EndTime.Value.UTC()
				event.EndTime = &end
			}
		}

		event.Type, event.Category = downtime.Resolve(deref(in.Type), deref(in.Category), event.Type, event.Category)

		if event.IsOpen() {
			event.InterventionMinutes = nil
			if !wasOpen {
				others, err := tx.OpenStoppages(ctx, machine.ID, event.ID)
				if err != nil {
					return err
				}
				event.ConflictOverride = len(others) > 0
			}
		} else {
			event.InterventionMinutes = interventionMinutes(event.StartTime, *event.EndTime)
		}

		if err := tx.SaveStoppage(ctx, event); err != nil {
			return err
		}

		change, err = recompute(ctx, tx, machine)
		return err
	})
	if err != nil {
		return nil, classify(op, err, "")
	}

	s.logger.Info("stoppage edited",
		zap.String("stoppage_id", event.ID),
		zap.String("machine_id", event.MachineID),
		zap.Bool("open", event.IsOpen()),
		zap.String("status", string(change.status)))
	s.announce(change)
	return event, nil
}

// Delete removes a stoppage permanently.
func (s *Service) Delete(ctx context.Context, scope tenant.Scope, id string) error {
	const op = "delete stoppage"

	var event *model.StoppageEvent
	var change statusChange
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		var machine *model.Machine
		var err error
		event, machine, err = lockEvent(ctx, tx, scope, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteStoppage(ctx, event.ID); err != nil {
			return err
		}

		change, err = recompute(ctx, tx, machine)
		return err
	})
	if err != nil {
		return classify(op, err, "")
	}

	s.logger.Info("stoppage deleted",
		zap.String("stoppage_id", event.ID),
		zap.String("machine_id", event.MachineID),
		zap.String("status", string(change.status)))
	s.announce(change)
	return nil
}

// Reconcile re-derives the cached status of every machine in scope and
// returns how many were corrected.
func (s *Service) Reconcile(ctx context.Context, scope tenant.Scope) (int, error) {
	const op = "reconcile machine status"

	machines, err := s.store.ListMachines(ctx, scope, store.MachineFilter{})
	if err != nil {
		return 0, classify(op, err, "")
	}

	corrected := 0
	for _, m := range machines {
		var change statusChange
		err := s.store.Transaction(ctx, func(tx store.Store) error {
			machine, err := tx.LockMachine(ctx, tenant.AllTenants(), m.ID)
			if err != nil {
				return err
			}
			change, err = recompute(ctx, tx, machine)
			return err
		})
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return corrected, classify(op, err, "")
		}
		if change.changed {
			corrected++
			s.logger.Warn("machine status was stale",
				zap.String("machine_id", m.ID),
				zap.String("cached", string(m.Status)),
				zap.String("derived", string(change.status)))
			s.announce(change)
		}
	}
	return corrected, nil
}

// lockEvent loads an event, locks its machine and reloads the event so that
// it reflects every command committed before the lock was granted.
func lockEvent(ctx context.Context, tx store.Store, scope tenant.Scope, id string) (*model.StoppageEvent, *model.Machine, error) {
	event, err := tx.GetStoppage(ctx, scope, id)
	if err != nil {
		return nil, nil, err
	}
	machine, err := tx.LockMachine(ctx, scope, event.MachineID)
	if err != nil {
		return nil, nil, err
	}
	event, err = tx.GetStoppage(ctx, scope, id)
	if err != nil {
		return nil, nil, err
	}
	return event, machine, nil
}

// recompute derives the machine's status from its current open set and writes
// it when it differs from the cached value.
func recompute(ctx context.Context, tx store.Store, machine *model.Machine) (statusChange, error) {
	categories, err := tx.OpenCategories(ctx, machine.ID)
	if err != nil {
		return statusChange{}, err
	}
	status := downtime.Derive(categories)
	change := statusChange{machineID: machine.ID, status: status}
	if status == machine.Status {
		return change, nil
	}
	if err := tx.UpdateMachineStatus(ctx, machine.ID, status); err != nil {
		return statusChange{}, err
	}
	machine.Status = status
	change.changed = true
	return change, nil
}

// interventionMinutes is the rounded length of [start, end] in minutes, never negative.
func interventionMinutes(start, end time.Time) *int {
	minutes := int(math.Round(end.Sub(start).Minutes()))
	if minutes < 0 {
		minutes = 0
	}
	return &minutes
}

// classify maps any error onto the apperr taxonomy. A unique violation can
// only come from the single-open index and is reported as conflictCode.
// logOverride records the open events a confirmed command went past.
func (s *Service) logOverride(event *model.StoppageEvent, decision ConflictDecision) {
	if !decision.Overridden {
		return
	}
	ids := make([]string, len(decision.Blocking))
	for i, other := range decision.Blocking {
		ids[i] = other.ID
	}
	s.logger.Warn("open stoppage conflict overridden",
		zap.String("stoppage_id", event.ID),
		zap.String("machine_id", event.MachineID),
		zap.Strings("other_open", ids))
}

func classify(op string, err error, conflictCode string) error {
	if e, ok := apperr.As(err); ok {
		if e.Op == "" {
			e.Op = op
		}
		return e
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("machine or stoppage not found").WithOp(op)
	case errors.Is(err, gorm.ErrDuplicatedKey) && conflictCode != "":
		e := apperr.Conflict(conflictCode, "Another stoppage was opened for this machine at the same time. Confirm to proceed anyway.").WithOp(op)
		e.Err = err
		return e
	}
	return apperr.Internal("storage failure", err).WithOp(op)
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
