// README: Background sweepers; expire past trips and chase unfunded ones.
package trip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tripshare/internal/config"
)

type Sweeper struct {
	svc *Service
	cfg config.SweeperConfig
}

func NewSweeper(svc *Service, cfg config.SweeperConfig) *Sweeper {
	return &Sweeper{svc: svc, cfg: cfg}
}

type PaymentSweep struct {
	Funded    int
	Reminded  int
	Cancelled int
}

// CancelExpired cancels every trip dated before today that never ran.
func (w *Sweeper) CancelExpired(ctx context.Context, now time.Time) (int, error) {
	s := w.svc
	today := now.In(s.loc).Format(dateLayout)
	trips, err := s.repo.ListExpired(ctx, today)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, candidate := range trips {
		err := s.repo.WithTx(ctx, func(tx Tx) error {
			t, err := tx.LockTrip(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if t.TripDate >= today || !CanTransition(t.Status, StatusCancelled) {
				return errSkip
			}
			return s.cancel(ctx, tx, t, now, "trip date passed")
		})
		switch {
		case errors.Is(err, errSkip):
		case err != nil:
			s.log.WithError(err).WithField("trip_id", candidate.ID).Warn("sweeper: cancel expired trip")
		default:
			cancelled++
		}
	}
	return cancelled, nil
}

// CheckPendingPayments walks unfunded upcoming trips: marks them funded once
// the creator can pay, otherwise warns at the reminder lead, reminds twice
// before the grace deadline, and cancels after it.
func (w *Sweeper) CheckPendingPayments(ctx context.Context, now time.Time) (PaymentSweep, error) {
	s := w.svc
	trips, err := s.repo.ListPendingPayment(ctx, now)
	if err != nil {
		return PaymentSweep{}, err
	}

	var out PaymentSweep
	for _, candidate := range trips {
		var outcome paymentOutcome
		err := s.repo.WithTx(ctx, func(tx Tx) error {
			t, err := tx.LockTrip(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if t.UserHasEnoughMoney || (t.Status != StatusOpen && t.Status != StatusFull) {
				return errSkip
			}
			acct, err := tx.LockAccount(ctx, t.CreatorID)
			if err != nil {
				return err
			}
			outcome = s.nextPaymentStep(t, acct, now)
			if outcome == paymentWait {
				return errSkip
			}
			if outcome == paymentCancel {
				return s.cancel(ctx, tx, t, now, "payment not received")
			}
			return s.update(ctx, tx, t, t.StatusVersion, t.Status, ActorSystem, nil)
		})
		switch {
		case errors.Is(err, errSkip):
			continue
		case err != nil:
			s.log.WithError(err).WithField("trip_id", candidate.ID).Warn("sweeper: payment check")
			continue
		}
		w.notifyPayment(candidate, outcome)
		switch outcome {
		case paymentFunded:
			out.Funded++
		case paymentCancel:
			out.Cancelled++
		default:
			out.Reminded++
		}
	}
	return out, nil
}

type paymentOutcome int

const (
	paymentWait paymentOutcome = iota
	paymentFunded
	paymentFirstNotice
	paymentReminder30
	paymentReminder15
	paymentCancel
)

var errSkip = errors.New("skip")

// nextPaymentStep mutates t for the chosen step.
func (s *Service) nextPaymentStep(t *Trip, acct Account, now time.Time) paymentOutcome {
	if acct.Balance >= t.TotalFare {
		t.UserHasEnoughMoney = true
		return paymentFunded
	}
	if t.Notified8hAt == nil {
		if t.StartTime.Sub(now) > s.cfg.PaymentReminderLead {
			return paymentWait
		}
		at := now
		t.Notified8hAt = &at
		return paymentFirstNotice
	}
	left := t.Notified8hAt.Add(s.cfg.PaymentGrace).Sub(now)
	switch {
	case left <= 0:
		return paymentCancel
	case left <= 15*time.Minute && !t.Notified15m:
		t.Notified15m = true
		t.Notified30m = true
		return paymentReminder15
	case left <= 30*time.Minute && !t.Notified30m:
		t.Notified30m = true
		return paymentReminder30
	default:
		return paymentWait
	}
}

func (w *Sweeper) notifyPayment(t *Trip, outcome paymentOutcome) {
	s := w.svc
	var title, body string
	switch outcome {
	case paymentFunded:
		title, body = "Trip confirmed", fmt.Sprintf("Your trip on %s is now paid and confirmed.", t.TripDate)
	case paymentFirstNotice:
		title, body = "Payment needed", fmt.Sprintf("Top up your balance within %s or your trip on %s will be cancelled.", s.cfg.PaymentGrace, t.TripDate)
	case paymentReminder30:
		title, body = "Payment reminder", "30 minutes left to pay for your trip."
	case paymentReminder15:
		title, body = "Payment reminder", "15 minutes left to pay for your trip."
	case paymentCancel:
		title, body = "Trip cancelled", fmt.Sprintf("Your trip on %s was cancelled because it was not paid.", t.TripDate)
	default:
		return
	}
	s.notifier.Notify(t.CreatorID, title, body)
}

func (s *Service) cancel(ctx context.Context, tx Tx, t *Trip, now time.Time, reason string) error {
	version := t.StatusVersion
	from := t.Status
	t.Status = StatusCancelled
	t.CancelledAt = &now
	t.CancelReason = &reason
	return s.update(ctx, tx, t, version, from, ActorSystem, nil)
}

func (w *Sweeper) RunExpiryTicker(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.ExpireEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.CancelExpired(ctx, w.svc.now())
			if err != nil {
				w.svc.log.WithError(err).Error("sweeper: expiry run failed")
				continue
			}
			if n > 0 {
				w.svc.log.WithField("cancelled", n).Info("sweeper: expired trips cancelled")
			}
		}
	}
}

func (w *Sweeper) RunPaymentTicker(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PaymentEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := w.CheckPendingPayments(ctx, w.svc.now())
			if err != nil {
				w.svc.log.WithError(err).Error("sweeper: payment run failed")
				continue
			}
			if res.Funded+res.Reminded+res.Cancelled > 0 {
				w.svc.log.WithFields(logrus.Fields{
					"funded":    res.Funded,
					"reminded":  res.Reminded,
					"cancelled": res.Cancelled,
				}).Info("sweeper: pending payments processed")
			}
		}
	}
}
