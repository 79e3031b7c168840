// README: Driver side of the lifecycle; assignment, start window, settlement and withdrawal.
package trip

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"tripshare/internal/types"
)

type AssignCommand struct {
	TripID   types.ID
	DriverID types.ID
}

type StartCommand struct {
	TripID   types.ID
	DriverID types.ID
}

type EndCommand struct {
	TripID   types.ID
	DriverID types.ID
}

type DriverLeaveCommand struct {
	TripID   types.ID
	DriverID types.ID
}

type Settlement struct {
	Trip         *Trip
	Charged      int64
	DriverPayout int64
}

type DriverLeaveResult struct {
	Trip    *Trip
	Penalty int64
}

// ListFullTrips returns funded FULL trips still ahead, soonest first.
func (s *Service) ListFullTrips(ctx context.Context, skip, take int) ([]*Trip, error) {
	if skip < 0 {
		skip = 0
	}
	if take <= 0 {
		take = 20
	}
	return s.repo.ListFull(ctx, s.now(), skip, take)
}

func (s *Service) AssignDriver(ctx context.Context, cmd AssignCommand) (*Trip, error) {
	var out *Trip
	err := s.repo.WithTx(ctx, func(tx Tx) error {
		t, err := tx.LockTrip(ctx, cmd.TripID)
		if err != nil {
			return err
		}
		acct, err := tx.LockAccount(ctx, cmd.DriverID)
		if err != nil {
			return err
		}
		if acct.Role != RoleDriver {
			return ErrNotDriver
		}
		if t.Status != StatusFull || !CanTransition(t.Status, StatusAssigned) {
			return ErrInvalidState
		}
		if !t.UserHasEnoughMoney {
			return ErrUnfunded
		}
		buffer := s.cfg.ConflictBuffer
		assigned, err := tx.AssignedToDriver(ctx, cmd.DriverID, t.StartTime.Add(-buffer), t.StartTime.Add(buffer))
		if err != nil {
			return err
		}
		if other, clash := DetectDriverConflict(t.StartTime, assigned, buffer); clash {
			return fmt.Errorf("%w: %s", ErrConflictingTrip, other.ID)
		}

		version := t.StatusVersion
		driverID := cmd.DriverID
		t.DriverID = &driverID
		t.Status = StatusAssigned
		if err := s.update(ctx, tx, t, version, StatusFull, ActorDriver, &driverID); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifyMembers(out, "", "Driver assigned", "A driver was assigned to your trip.")
	return out, nil
}

func (s *Service) StartTrip(ctx context.Context, cmd StartCommand) (*Trip, error) {
	var out *Trip
	err := s.repo.WithTx(ctx, func(tx Tx) error {
		t, err := tx.LockTrip(ctx, cmd.TripID)
		if err != nil {
			return err
		}
		if !t.HasDriver(cmd.DriverID) {
			return ErrNotDriver
		}
		if !CanTransition(t.Status, StatusStarted) {
			return ErrInvalidState
		}
		now := s.now()
		if err := CheckStartWindow(now, t.StartTime, s.cfg.StartEarly, s.cfg.StartLate); err != nil {
			return err
		}

		version := t.StatusVersion
		from := t.Status
		t.Status = StatusStarted
		t.StartedAt = &now
		if err := s.update(ctx, tx, t, version, from, ActorDriver, &cmd.DriverID); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifyMembers(out, "", "Trip started", "Your trip has started.")
	return out, nil
}

// EndTrip settles a started trip: every member is charged their fare and
// the driver is paid the driver share, all or nothing.
func (s *Service) EndTrip(ctx context.Context, cmd EndCommand) (*Settlement, error) {
	var out Settlement
	err := s.repo.WithTx(ctx, func(tx Tx) error {
		t, err := tx.LockTrip(ctx, cmd.TripID)
		if err != nil {
			return err
		}
		if !t.HasDriver(cmd.DriverID) {
			return ErrNotDriver
		}
		if !CanTransition(t.Status, StatusCompleted) {
			return ErrInvalidState
		}

		now := s.now()
		var charged int64
		for _, m := range t.Members {
			if err := tx.PostEntry(ctx, LedgerEntry{
				ID:        newID(),
				UserID:    m.UserID,
				TripID:    t.ID,
				Amount:    -m.PassengerFare,
				Kind:      EntryTripFare,
				CreatedAt: now,
			}); err != nil {
				return err
			}
			charged += m.PassengerFare
		}
		if err := tx.PostEntry(ctx, LedgerEntry{
			ID:        newID(),
			UserID:    cmd.DriverID,
			TripID:    t.ID,
			Amount:    t.DriverShare,
			Kind:      EntryDriverPayout,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		version := t.StatusVersion
		from := t.Status
		t.Status = StatusCompleted
		t.IsPaid = true
		t.CompletedAt = &now
		if err := s.update(ctx, tx, t, version, from, ActorDriver, &cmd.DriverID); err != nil {
			return err
		}
		out = Settlement{Trip: t, Charged: charged, DriverPayout: t.DriverShare}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, m := range out.Trip.Members {
		s.notifier.Notify(m.UserID, "Trip completed",
			fmt.Sprintf("Your trip is complete. %d %s was charged.", m.PassengerFare, s.cfg.Currency))
	}
	s.notifier.Notify(cmd.DriverID, "Trip completed",
		fmt.Sprintf("You earned %d %s for this trip.", out.DriverPayout, s.cfg.Currency))
	s.log.WithFields(logrus.Fields{
		"trip_id": cmd.TripID,
		"charged": out.Charged,
		"payout":  out.DriverPayout,
	}).Info("trip: settled")
	return &out, nil
}

// DriverLeave unassigns the driver, returning the trip to FULL.
func (s *Service) DriverLeave(ctx context.Context, cmd DriverLeaveCommand) (*DriverLeaveResult, error) {
	var out DriverLeaveResult
	err := s.repo.WithTx(ctx, func(tx Tx) error {
		t, err := tx.LockTrip(ctx, cmd.TripID)
		if err != nil {
			return err
		}
		if !t.HasDriver(cmd.DriverID) {
			return ErrNotDriver
		}
		if t.Status != StatusAssigned {
			return ErrInvalidState
		}

		now := s.now()
		penalty, err := LeavePenalty(t.StartTime.Sub(now), s.cfg.DriverLeave)
		if err != nil {
			return err
		}
		if penalty > 0 {
			if err := tx.PostEntry(ctx, LedgerEntry{
				ID:             newID(),
				UserID:         cmd.DriverID,
				TripID:         t.ID,
				Amount:         -penalty,
				Kind:           EntryLeavePenalty,
				AllowOverdraft: true,
				CreatedAt:      now,
			}); err != nil {
				return err
			}
		}

		version := t.StatusVersion
		t.DriverID = nil
		t.Status = StatusFull
		if err := s.update(ctx, tx, t, version, StatusAssigned, ActorDriver, &cmd.DriverID); err != nil {
			return err
		}
		out = DriverLeaveResult{Trip: t, Penalty: penalty}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifyMembers(out.Trip, "", "Driver left", "Your driver left the trip. We are looking for a new one.")
	s.notifyDrivers(ctx, out.Trip)
	return &out, nil
}

// update writes t with an optimistic version check and records the
// transition from -> t.Status.
func (s *Service) update(ctx context.Context, tx Tx, t *Trip, version int, from Status, actorType string, actorID *types.ID) error {
	if from != t.Status && !CanTransition(from, t.Status) {
		return ErrInvalidState
	}
	ok, err := tx.UpdateTrip(ctx, t, version)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	if from == t.Status {
		return nil
	}
	return tx.AppendEvent(ctx, &Event{
		TripID:     t.ID,
		FromStatus: from,
		ToStatus:   t.Status,
		ActorType:  actorType,
		ActorID:    actorID,
		CreatedAt:  s.now(),
	})
}
