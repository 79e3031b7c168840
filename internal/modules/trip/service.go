// README: Trip service; request, join, leave and fare quotes on top of the repository.
package trip

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tripshare/internal/config"
	"tripshare/internal/modules/matching"
	"tripshare/internal/modules/pricing"
	"tripshare/internal/modules/routing"
	"tripshare/internal/types"
)

const dateLayout = "2006-01-02"

var dateInputLayouts = []string{"2006-1-2", "2-1-2006"}

type Pricing interface {
	Config(ctx context.Context, bookingType string) (pricing.PricingConfig, error)
}

type Routes interface {
	Route(ctx context.Context, origin, destination types.Point) (routing.Route, error)
}

type Nearby interface {
	FindNearby(ctx context.Context, q matching.NearbyQuery) ([]matching.Match, error)
}

// Notifier delivers best-effort push messages. Implementations must not block.
type Notifier interface {
	Notify(userID types.ID, title, body string)
}

type Deps struct {
	Repo     Repository
	Pricing  Pricing
	Routes   Routes
	Nearby   Nearby
	Notifier Notifier
	Config   config.LifecycleConfig
	Log      logrus.FieldLogger
}

type Service struct {
	repo     Repository
	pricing  Pricing
	routes   Routes
	nearby   Nearby
	notifier Notifier
	cfg      config.LifecycleConfig
	loc      *time.Location
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewService(d Deps) (*Service, error) {
	loc, err := time.LoadLocation(d.Config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", d.Config.Timezone, err)
	}
	return &Service{
		repo:     d.Repo,
		pricing:  d.Pricing,
		routes:   d.Routes,
		nearby:   d.Nearby,
		notifier: d.Notifier,
		cfg:      d.Config,
		loc:      loc,
		log:      d.Log,
		now:      time.Now,
	}, nil
}

type RequestCommand struct {
	UserID      types.ID
	From        types.Point
	To          types.Point
	TripDates   []string
	StartTime   string
	EndTime     string
	Type        TripType
	BookingType BookingType
	Seats       int
	Skip        int
	Take        int
}

type JoinCommand struct {
	TripID types.ID
	UserID types.ID
	Pickup types.Point
	Drop   types.Point
	Seats  int
}

type LeaveCommand struct {
	TripID types.ID
	UserID types.ID
}

type NearbyCommand struct {
	UserID    types.ID
	Pickup    types.Point
	Drop      types.Point
	Seats     int
	StartTime time.Time
	Skip      int
	Take      int
}

type FareCommand struct {
	UserID      types.ID
	From        types.Point
	To          types.Point
	BookingType BookingType
	Seats       int
}

type CreatedTrip struct {
	Trip      *Trip
	Direction Direction
}

type NearbyTrip struct {
	Trip                 *Trip
	PickupDistanceMeters float64
	DropDistanceMeters   float64
	PickupT              float64
	DropT                float64
}

type NearbyForLeg struct {
	Date      string
	Direction Direction
	Trips     []NearbyTrip
}

type RequestResult struct {
	Created        []CreatedTrip
	Nearby         []NearbyForLeg
	Quote          pricing.Quote
	TotalCost      int64
	HasEnoughMoney bool
	BonusUsed      bool
}

type JoinResult struct {
	Trip       *Trip
	Member     Member
	Quote      pricing.Quote
	BecameFull bool
}

type LeaveResult struct {
	Trip           *Trip
	Penalty        int64
	Cancelled      bool
	DriverReleased bool
}

type FareQuote struct {
	Quote    pricing.Quote
	Duration time.Duration
}

type leg struct {
	date      string
	direction Direction
	from      types.Point
	to        types.Point
	start     time.Time
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Trip, error) {
	return s.repo.Get(ctx, id)
}

// RequestTrip books the user onto new trips for every requested date and
// leg, or returns the OPEN trips they could join instead.
func (s *Service) RequestTrip(ctx context.Context, cmd RequestCommand) (*RequestResult, error) {
	if err := validateRequest(cmd); err != nil {
		return nil, err
	}
	legs, err := s.planLegs(cmd)
	if err != nil {
		return nil, err
	}

	route, err := s.routes.Route(ctx, cmd.From, cmd.To)
	if err != nil {
		return nil, err
	}
	cfg, err := s.pricing.Config(ctx, string(cmd.BookingType))
	if err != nil {
		return nil, err
	}
	acct, err := s.repo.GetAccount(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	quote, err := pricing.Price(route.DistanceKm(), cmd.Seats, cfg, acct.Bonus)
	if err != nil {
		return nil, err
	}
	quote.Currency = s.cfg.Currency

	windows, err := s.repo.ActiveWindows(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	for _, l := range legs {
		proposed := Window{Start: l.start, End: l.start.Add(route.Duration)}
		if w, clash := DetectConflict(proposed, windows, s.cfg.ConflictBuffer); clash {
			if w.TripID == "" {
				return nil, fmt.Errorf("%w: legs on %s overlap each other", ErrConflictingTrip, l.date)
			}
			return nil, fmt.Errorf("%w: %s on %s", ErrConflictingTrip, w.TripID, l.date)
		}
		windows = append(windows, proposed)
	}

	res := &RequestResult{
		Quote:     quote,
		TotalCost: quote.FinalFare * int64(len(legs)),
	}
	res.HasEnoughMoney = acct.Balance >= res.TotalCost
	affordable := affordableTrips(acct.Balance, quote.FinalFare, len(legs))
	createFull := StatusForNew(cmd.BookingType, cmd.Seats) == StatusFull

	unfunded := 0
	for _, l := range legs {
		if !createFull {
			nearby, err := s.FindNearbyTrips(ctx, NearbyCommand{
				UserID:    cmd.UserID,
				Pickup:    l.from,
				Drop:      l.to,
				Seats:     cmd.Seats,
				StartTime: l.start,
				Skip:      cmd.Skip,
				Take:      cmd.Take,
			})
			if err != nil {
				return nil, err
			}
			if len(nearby) > 0 {
				res.Nearby = append(res.Nearby, NearbyForLeg{Date: l.date, Direction: l.direction, Trips: nearby})
				continue
			}
		}

		funded := len(res.Created) < affordable
		t := s.newTrip(cmd, l, route, quote, funded)
		if err := s.createTrip(ctx, t); err != nil {
			return nil, err
		}
		if !funded {
			unfunded++
		}
		res.Created = append(res.Created, CreatedTrip{Trip: t, Direction: l.direction})
		s.notifyCreated(ctx, t)
	}

	if quote.HasBonus && len(res.Created) > 0 {
		err := s.repo.WithTx(ctx, func(tx Tx) error {
			return tx.AdjustBonus(ctx, cmd.UserID, -cfg.BonusAmount)
		})
		if err != nil {
			return nil, err
		}
		res.BonusUsed = true
	}
	if unfunded > 0 {
		s.notifier.Notify(cmd.UserID, "Low balance",
			fmt.Sprintf("%d of your trips are not paid yet. Top up %d %s to confirm them.",
				unfunded, quote.FinalFare*int64(unfunded), s.cfg.Currency))
	}

	s.log.WithFields(logrus.Fields{
		"user_id": cmd.UserID,
		"created": len(res.Created),
		"nearby":  len(res.Nearby),
	}).Info("trip: request handled")
	return res, nil
}

func validateRequest(cmd RequestCommand) error {
	switch {
	case cmd.UserID == "":
		return fmt.Errorf("%w: user is required", ErrValidation)
	case !cmd.From.Valid() || !cmd.To.Valid():
		return fmt.Errorf("%w: invalid coordinates", ErrValidation)
	case len(cmd.TripDates) == 0:
		return fmt.Errorf("%w: at least one trip date is required", ErrValidation)
	case !cmd.BookingType.Valid():
		return fmt.Errorf("%w: unknown booking type %q", ErrValidation, cmd.BookingType)
	case cmd.Seats < 1 || cmd.Seats > cmd.BookingType.Capacity():
		return fmt.Errorf("%w: seats must be between 1 and %d", ErrValidation, cmd.BookingType.Capacity())
	case cmd.Type != OneWay && cmd.Type != RoundTrip:
		return fmt.Errorf("%w: unknown trip type %q", ErrValidation, cmd.Type)
	case cmd.Type == RoundTrip && cmd.EndTime == "":
		return fmt.Errorf("%w: round trip needs an end time", ErrValidation)
	}
	return nil
}

// planLegs expands dates and trip type into legs ordered by start time.
func (s *Service) planLegs(cmd RequestCommand) ([]leg, error) {
	startClock, err := parseClock(cmd.StartTime)
	if err != nil {
		return nil, err
	}
	var endClock time.Duration
	if cmd.Type == RoundTrip {
		if endClock, err = parseClock(cmd.EndTime); err != nil {
			return nil, err
		}
	}

	var legs []leg
	seen := make(map[string]bool, len(cmd.TripDates))
	for _, raw := range cmd.TripDates {
		day, err := s.parseDate(raw)
		if err != nil {
			return nil, err
		}
		date := day.Format(dateLayout)
		if seen[date] {
			return nil, fmt.Errorf("%w: trip date %s given twice", ErrValidation, date)
		}
		seen[date] = true
		legs = append(legs, leg{date: date, direction: Outbound, from: cmd.From, to: cmd.To, start: day.Add(startClock)})
		if cmd.Type == RoundTrip {
			legs = append(legs, leg{date: date, direction: Return, from: cmd.To, to: cmd.From, start: day.Add(endClock)})
		}
	}
	sort.SliceStable(legs, func(i, j int) bool { return legs[i].start.Before(legs[j].start) })
	return legs, nil
}

func (s *Service) parseDate(raw string) (time.Time, error) {
	for _, layout := range dateInputLayouts {
		if d, err := time.ParseInLocation(layout, raw, s.loc); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid trip date %q", ErrValidation, raw)
}

// parseClock turns HH:MM into an offset from midnight.
func parseClock(raw string) (time.Duration, error) {
	c, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid time %q", ErrValidation, raw)
	}
	return time.Duration(c.Hour())*time.Hour + time.Duration(c.Minute())*time.Minute, nil
}

// affordableTrips is how many trips balance covers at fare each.
func affordableTrips(balance, fare int64, legs int) int {
	if fare <= 0 {
		return legs
	}
	if balance <= 0 {
		return 0
	}
	n := balance / fare
	if n > int64(legs) {
		return legs
	}
	return int(n)
}

func (s *Service) newTrip(cmd RequestCommand, l leg, route routing.Route, q pricing.Quote, funded bool) *Trip {
	now := s.now()
	id := newID()
	t := &Trip{
		ID:                 id,
		CreatorID:          cmd.UserID,
		Status:             StatusForNew(cmd.BookingType, cmd.Seats),
		BookingType:        cmd.BookingType,
		From:               l.from,
		To:                 l.to,
		TripDate:           l.date,
		StartTime:          l.start,
		EndTime:            l.start.Add(route.Duration),
		DistanceKm:         route.DistanceKm(),
		Duration:           route.Duration,
		SeatsBooked:        cmd.Seats,
		UserHasEnoughMoney: funded,
		CreatedAt:          now,
	}
	AddFare(t, q.Breakdown)
	t.Members = []Member{{
		ID:            newID(),
		TripID:        id,
		UserID:        cmd.UserID,
		Pickup:        l.from,
		Drop:          l.to,
		SeatsBooked:   cmd.Seats,
		PassengerFare: q.Breakdown.PassengerFare,
		DriverShare:   q.Breakdown.DriverShare,
		AppCommission: q.Breakdown.AppCommission,
		CreatedAt:     now,
	}}
	return t
}

func (s *Service) createTrip(ctx context.Context, t *Trip) error {
	return s.repo.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.LockAccount(ctx, t.CreatorID); err != nil {
			return err
		}
		windows, err := tx.ActiveWindows(ctx, t.CreatorID)
		if err != nil {
			return err
		}
		if w, clash := DetectConflict(t.Window(), windows, s.cfg.ConflictBuffer); clash {
			return fmt.Errorf("%w: %s on %s", ErrConflictingTrip, w.TripID, t.TripDate)
		}
		if err := tx.CreateTrip(ctx, t); err != nil {
			return err
		}
		creator := t.CreatorID
		return tx.AppendEvent(ctx, &Event{
			TripID:     t.ID,
			FromStatus: StatusNone,
			ToStatus:   t.Status,
			ActorType:  ActorPassenger,
			ActorID:    &creator,
			CreatedAt:  t.CreatedAt,
		})
	})
}

func (s *Service) notifyCreated(ctx context.Context, t *Trip) {
	s.notifier.Notify(t.CreatorID, "Trip created",
		fmt.Sprintf("Your trip on %s at %s was created.", t.TripDate, t.StartTime.In(s.loc).Format("15:04")))
	if t.Status == StatusFull {
		s.notifyDrivers(ctx, t)
	}
}

func (s *Service) notifyDrivers(ctx context.Context, t *Trip) {
	drivers, err := s.repo.ListDriverIDs(ctx)
	if err != nil {
		s.log.WithError(err).WithField("trip_id", t.ID).Warn("trip: list drivers for notification")
		return
	}
	body := fmt.Sprintf("A full trip on %s at %s is waiting for a driver.", t.TripDate, t.StartTime.In(s.loc).Format("15:04"))
	for _, id := range drivers {
		s.notifier.Notify(id, "New trip available", body)
	}
}

func (s *Service) notifyMembers(t *Trip, except types.ID, title, body string) {
	for _, m := range t.Members {
		if m.UserID != except {
			s.notifier.Notify(m.UserID, title, body)
		}
	}
}

// FindNearbyTrips lists OPEN trips the pickup and drop fit on, closest pickup first.
func (s *Service) FindNearbyTrips(ctx context.Context, cmd NearbyCommand) ([]NearbyTrip, error) {
	if !cmd.Pickup.Valid() || !cmd.Drop.Valid() {
		return nil, fmt.Errorf("%w: invalid coordinates", ErrValidation)
	}
	if cmd.Seats <= 0 {
		cmd.Seats = 1
	}
	matches, err := s.nearby.FindNearby(ctx, matching.NearbyQuery{
		Request: matching.Request{
			UserID:    cmd.UserID,
			Pickup:    cmd.Pickup,
			Drop:      cmd.Drop,
			Seats:     cmd.Seats,
			StartTime: cmd.StartTime,
		},
		Skip: cmd.Skip,
		Take: cmd.Take,
	})
	if err != nil {
		return nil, err
	}

	out := make([]NearbyTrip, 0, len(matches))
	for _, m := range matches {
		t, err := s.repo.Get(ctx, m.Candidate.TripID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, NearbyTrip{
			Trip:                 t,
			PickupDistanceMeters: m.Pickup.DistanceMeters,
			DropDistanceMeters:   m.Drop.DistanceMeters,
			PickupT:              m.Pickup.T,
			DropT:                m.Drop.T,
		})
	}
	return out, nil
}

// QuoteFare prices a prospective booking without creating anything.
func (s *Service) QuoteFare(ctx context.Context, cmd FareCommand) (*FareQuote, error) {
	if !cmd.From.Valid() || !cmd.To.Valid() {
		return nil, fmt.Errorf("%w: invalid coordinates", ErrValidation)
	}
	if !cmd.BookingType.Valid() {
		return nil, fmt.Errorf("%w: unknown booking type %q", ErrValidation, cmd.BookingType)
	}
	route, err := s.routes.Route(ctx, cmd.From, cmd.To)
	if err != nil {
		return nil, err
	}
	cfg, err := s.pricing.Config(ctx, string(cmd.BookingType))
	if err != nil {
		return nil, err
	}
	var bonus int64
	if cmd.UserID != "" {
		acct, err := s.repo.GetAccount(ctx, cmd.UserID)
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		bonus = acct.Bonus
	}
	q, err := pricing.Price(route.DistanceKm(), cmd.Seats, cfg, bonus)
	if err != nil {
		return nil, err
	}
	q.Currency = s.cfg.Currency
	return &FareQuote{Quote: q, Duration: route.Duration}, nil
}

// JoinTrip adds the user to an OPEN trip for their own pickup and drop.
func (s *Service) JoinTrip(ctx context.Context, cmd JoinCommand) (*JoinResult, error) {
	if cmd.UserID == "" || cmd.TripID == "" {
		return nil, fmt.Errorf("%w: trip and user are required", ErrValidation)
	}
	if !cmd.Pickup.Valid() || !cmd.Drop.Valid() {
		return nil, fmt.Errorf("%w: invalid coordinates", ErrValidation)
	}
	if cmd.Seats <= 0 {
		return nil, fmt.Errorf("%w: seats must be positive", ErrValidation)
	}

	route, err := s.routes.Route(ctx, cmd.Pickup, cmd.Drop)
	if err != nil {
		return nil, err
	}

	var res JoinResult
	err = s.repo.WithTx(ctx, func(tx Tx) error {
		t, err := tx.LockTrip(ctx, cmd.TripID)
		if err != nil {
			return err
		}
		if t.Status != StatusOpen {
			return ErrInvalidState
		}
		if _, ok := t.Member(cmd.UserID); ok {
			return ErrAlreadyMember
		}
		version := t.StatusVersion
		from := t.Status
		if err := AddSeats(t, cmd.Seats); err != nil {
			return err
		}

		acct, err := tx.LockAccount(ctx, cmd.UserID)
		if err != nil {
			return err
		}
		windows, err := tx.ActiveWindows(ctx, cmd.UserID)
		if err != nil {
			return err
		}
		if w, clash := DetectConflict(t.Window(), windows, s.cfg.ConflictBuffer); clash {
			return fmt.Errorf("%w: %s", ErrConflictingTrip, w.TripID)
		}

		cfg, err := s.pricing.Config(ctx, string(t.BookingType))
		if err != nil {
			return err
		}
		quote, err := pricing.Price(route.DistanceKm(), cmd.Seats, cfg, 0)
		if err != nil {
			return err
		}
		quote.Currency = s.cfg.Currency

		if acct.Balance < quote.FinalFare {
			return &InsufficientBalanceError{UserID: cmd.UserID, Needed: quote.FinalFare, Available: acct.Balance}
		}

		m := Member{
			ID:            newID(),
			TripID:        t.ID,
			UserID:        cmd.UserID,
			Pickup:        cmd.Pickup,
			Drop:          cmd.Drop,
			SeatsBooked:   cmd.Seats,
			PassengerFare: quote.Breakdown.PassengerFare,
			DriverShare:   quote.Breakdown.DriverShare,
			AppCommission: quote.Breakdown.AppCommission,
			CreatedAt:     s.now(),
		}
		if err := tx.AddMember(ctx, &m); err != nil {
			return err
		}
		t.Members = append(t.Members, m)
		AddFare(t, quote.Breakdown)
		widened := WidenRoute(Route{From: t.From, To: t.To}, m)
		t.From, t.To = widened.From, widened.To

		if err := s.update(ctx, tx, t, version, from, ActorPassenger, &cmd.UserID); err != nil {
			return err
		}
		res = JoinResult{Trip: t, Member: m, Quote: quote, BecameFull: t.Status == StatusFull}
		return nil
	})
	if err != nil {
		return nil, err
	}

	t := res.Trip
	s.notifier.Notify(cmd.UserID, "Trip joined",
		fmt.Sprintf("You joined the trip on %s at %s.", t.TripDate, t.StartTime.In(s.loc).Format("15:04")))
	s.notifyMembers(t, cmd.UserID, "New passenger", "A new passenger joined your trip.")
	if res.BecameFull {
		s.notifyDrivers(ctx, t)
	}
	return &res, nil
}

// LeaveTrip removes a passenger before the trip starts, charging the late
// withdrawal penalty when it applies.
func (s *Service) LeaveTrip(ctx context.Context, cmd LeaveCommand) (*LeaveResult, error) {
	var (
		res      LeaveResult
		released *types.ID
	)
	err := s.repo.WithTx(ctx, func(tx Tx) error {
		t, err := tx.LockTrip(ctx, cmd.TripID)
		if err != nil {
			return err
		}
		m, ok := t.Member(cmd.UserID)
		if !ok {
			return ErrNotMember
		}
		switch t.Status {
		case StatusOpen, StatusFull, StatusAssigned:
		default:
			return ErrInvalidState
		}

		now := s.now()
		penalty, err := LeavePenalty(t.StartTime.Sub(now), s.cfg.PassengerLeave)
		if err != nil {
			return err
		}
		if penalty > 0 {
			if err := tx.PostEntry(ctx, LedgerEntry{
				ID:             newID(),
				UserID:         cmd.UserID,
				TripID:         t.ID,
				Amount:         -penalty,
				Kind:           EntryLeavePenalty,
				AllowOverdraft: true,
				CreatedAt:      now,
			}); err != nil {
				return err
			}
		}
		if err := tx.RemoveMember(ctx, m.ID); err != nil {
			return err
		}

		version := t.StatusVersion
		from := t.Status
		cancel, next := LeaveOutcome(t, m)
		t.Members = withoutMember(t.Members, m.ID)
		t.SeatsBooked -= m.SeatsBooked
		SubtractFare(t, m)
		if cancel {
			reason := "all passengers left"
			t.CancelledAt = &now
			t.CancelReason = &reason
		}
		if from == StatusAssigned && next == StatusOpen {
			released = t.DriverID
			t.DriverID = nil
		}
		t.Status = next
		if err := s.update(ctx, tx, t, version, from, ActorPassenger, &cmd.UserID); err != nil {
			return err
		}
		res = LeaveResult{Trip: t, Penalty: penalty, Cancelled: cancel, DriverReleased: released != nil}
		return nil
	})
	if err != nil {
		return nil, err
	}

	body := "You left the trip."
	if res.Penalty > 0 {
		body = fmt.Sprintf("You left the trip. A late withdrawal fee of %d %s was charged.", res.Penalty, s.cfg.Currency)
	}
	s.notifier.Notify(cmd.UserID, "Trip left", body)
	if res.Cancelled {
		s.notifyMembers(res.Trip, cmd.UserID, "Trip cancelled", "Your trip was cancelled.")
	} else {
		s.notifyMembers(res.Trip, cmd.UserID, "Passenger left", "A passenger left your trip. Seats are open again.")
	}
	switch {
	case released != nil:
		s.notifier.Notify(*released, "Trip reopened", "A passenger left the trip you were assigned to. It is open for new passengers again.")
	case res.Cancelled && res.Trip.DriverID != nil:
		s.notifier.Notify(*res.Trip.DriverID, "Trip cancelled", "The trip you were assigned to was cancelled.")
	}
	return &res, nil
}

func withoutMember(members []Member, id types.ID) []Member {
	out := make([]Member, 0, len(members))
	for _, m := range members {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}

// Candidates exposes OPEN trips to the matcher.
type Candidates struct {
	repo Repository
}

func NewCandidates(repo Repository) *Candidates {
	return &Candidates{repo: repo}
}

func (c *Candidates) OpenCandidates(ctx context.Context, from, to time.Time) ([]matching.Candidate, error) {
	trips, err := c.repo.ListOpenBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]matching.Candidate, len(trips))
	for i, t := range trips {
		out[i] = matching.Candidate{
			TripID:         t.ID,
			From:           t.From,
			To:             t.To,
			StartTime:      t.StartTime,
			Open:           t.Status == StatusOpen,
			AvailableSeats: t.AvailableSeats(),
			MemberIDs:      t.MemberIDs(),
		}
	}
	return out, nil
}

func newID() types.ID {
	return types.ID(uuid.NewString())
}
