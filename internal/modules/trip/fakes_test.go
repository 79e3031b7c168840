package trip

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"tripshare/internal/config"
	"tripshare/internal/geo"
	"tripshare/internal/modules/matching"
	"tripshare/internal/modules/pricing"
	"tripshare/internal/modules/routing"
	"tripshare/internal/types"
)

// memRepo is an in-memory Repository. WithTx works on a copy of the state
// and only publishes it when fn succeeds.
type memRepo struct {
	txMu sync.Mutex

	mu       sync.Mutex
	trips    map[types.ID]*Trip
	accounts map[types.ID]Account
	entries  []LedgerEntry
	events   []Event
}

func newMemRepo() *memRepo {
	return &memRepo{
		trips:    map[types.ID]*Trip{},
		accounts: map[types.ID]Account{},
	}
}

func (r *memRepo) putAccount(a Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.Role == "" {
		a.Role = RolePassenger
	}
	r.accounts[a.UserID] = a
}

func (r *memRepo) putTrip(t *Trip) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trips[t.ID] = cloneTrip(t)
}

func (r *memRepo) trip(id types.ID) *Trip {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.trips[id]; ok {
		return cloneTrip(t)
	}
	return nil
}

func (r *memRepo) balance(id types.ID) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id].Balance
}

func (r *memRepo) tripCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trips)
}

func (r *memRepo) ledger() []LedgerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LedgerEntry(nil), r.entries...)
}

func (r *memRepo) eventLog() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *memRepo) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	tx := &memTx{trips: make(map[types.ID]*Trip, len(r.trips)), accounts: make(map[types.ID]Account, len(r.accounts))}
	for id, t := range r.trips {
		tx.trips[id] = cloneTrip(t)
	}
	for id, a := range r.accounts {
		tx.accounts[id] = a
	}
	r.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.trips = tx.trips
	r.accounts = tx.accounts
	r.entries = append(r.entries, tx.entries...)
	r.events = append(r.events, tx.events...)
	return nil
}

func (r *memRepo) Get(_ context.Context, id types.ID) (*Trip, error) {
	if t := r.trip(id); t != nil {
		return t, nil
	}
	return nil, ErrNotFound
}

func (r *memRepo) filter(keep func(t *Trip) bool) []*Trip {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Trip
	for _, t := range r.trips {
		if keep(t) {
			out = append(out, cloneTrip(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

func (r *memRepo) ListOpenBetween(_ context.Context, from, to time.Time) ([]*Trip, error) {
	return r.filter(func(t *Trip) bool {
		return t.Status == StatusOpen && !t.StartTime.Before(from) && !t.StartTime.After(to)
	}), nil
}

func (r *memRepo) ListFull(_ context.Context, after time.Time, skip, take int) ([]*Trip, error) {
	all := r.filter(func(t *Trip) bool {
		return t.Status == StatusFull && t.UserHasEnoughMoney && t.StartTime.After(after)
	})
	if skip >= len(all) {
		return nil, nil
	}
	all = all[skip:]
	if take < len(all) {
		all = all[:take]
	}
	return all, nil
}

func (r *memRepo) ListPendingPayment(_ context.Context, now time.Time) ([]*Trip, error) {
	return r.filter(func(t *Trip) bool {
		return !t.UserHasEnoughMoney && (t.Status == StatusOpen || t.Status == StatusFull) && t.StartTime.After(now)
	}), nil
}

func (r *memRepo) ListExpired(_ context.Context, today string) ([]*Trip, error) {
	return r.filter(func(t *Trip) bool {
		return t.TripDate < today && (t.Status == StatusOpen || t.Status == StatusFull || t.Status == StatusAssigned)
	}), nil
}

func (r *memRepo) ActiveWindows(_ context.Context, userID types.ID) ([]Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return windowsOf(r.trips, userID), nil
}

func (r *memRepo) GetAccount(_ context.Context, userID types.ID) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[userID]
	if !ok {
		return Account{}, ErrUserNotFound
	}
	return a, nil
}

func (r *memRepo) ListDriverIDs(context.Context) ([]types.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.ID
	for id, a := range r.accounts {
		if a.Role == RoleDriver {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

type memTx struct {
	trips    map[types.ID]*Trip
	accounts map[types.ID]Account
	entries  []LedgerEntry
	events   []Event
}

func (tx *memTx) LockTrip(_ context.Context, id types.ID) (*Trip, error) {
	t, ok := tx.trips[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTrip(t), nil
}

func (tx *memTx) LockAccount(_ context.Context, userID types.ID) (Account, error) {
	a, ok := tx.accounts[userID]
	if !ok {
		return Account{}, ErrUserNotFound
	}
	return a, nil
}

func (tx *memTx) ActiveWindows(_ context.Context, userID types.ID) ([]Window, error) {
	return windowsOf(tx.trips, userID), nil
}

func (tx *memTx) AssignedToDriver(_ context.Context, driverID types.ID, from, to time.Time) ([]*Trip, error) {
	var out []*Trip
	for _, t := range tx.trips {
		if t.HasDriver(driverID) && t.Status == StatusAssigned && !t.IsPaid &&
			!t.StartTime.Before(from) && !t.StartTime.After(to) {
			out = append(out, cloneTrip(t))
		}
	}
	return out, nil
}

func windowsOf(trips map[types.ID]*Trip, userID types.ID) []Window {
	var out []Window
	for _, t := range trips {
		if t.Status == StatusCancelled || t.Status == StatusCompleted {
			continue
		}
		if _, ok := t.Member(userID); ok {
			out = append(out, t.Window())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (tx *memTx) CreateTrip(_ context.Context, t *Trip) error {
	tx.trips[t.ID] = cloneTrip(t)
	return nil
}

func (tx *memTx) AddMember(_ context.Context, m *Member) error {
	t, ok := tx.trips[m.TripID]
	if !ok {
		return ErrNotFound
	}
	t.Members = append(t.Members, *m)
	return nil
}

func (tx *memTx) RemoveMember(_ context.Context, memberID types.ID) error {
	for _, t := range tx.trips {
		for i, m := range t.Members {
			if m.ID == memberID {
				t.Members = append(t.Members[:i:i], t.Members[i+1:]...)
				return nil
			}
		}
	}
	return ErrNotMember
}

func (tx *memTx) UpdateTrip(_ context.Context, t *Trip, expectVersion int) (bool, error) {
	stored, ok := tx.trips[t.ID]
	if !ok || stored.StatusVersion != expectVersion {
		return false, nil
	}
	next := cloneTrip(t)
	next.Members = stored.Members
	next.StatusVersion = expectVersion + 1
	tx.trips[t.ID] = next
	t.StatusVersion = expectVersion + 1
	return true, nil
}

func (tx *memTx) PostEntry(_ context.Context, e LedgerEntry) error {
	a, ok := tx.accounts[e.UserID]
	if !ok {
		return ErrUserNotFound
	}
	if e.Amount < 0 && !e.AllowOverdraft && a.Balance+e.Amount < 0 {
		return &InsufficientBalanceError{UserID: e.UserID, Needed: -e.Amount, Available: a.Balance}
	}
	a.Balance += e.Amount
	tx.accounts[e.UserID] = a
	tx.entries = append(tx.entries, e)
	return nil
}

func (tx *memTx) AdjustBonus(_ context.Context, userID types.ID, delta int64) error {
	a, ok := tx.accounts[userID]
	if !ok {
		return ErrUserNotFound
	}
	a.Bonus += delta
	if a.Bonus < 0 {
		a.Bonus = 0
	}
	tx.accounts[userID] = a
	return nil
}

func (tx *memTx) AppendEvent(_ context.Context, e *Event) error {
	tx.events = append(tx.events, *e)
	return nil
}

func cloneTrip(t *Trip) *Trip {
	c := *t
	c.Members = append([]Member(nil), t.Members...)
	if t.DriverID != nil {
		d := *t.DriverID
		c.DriverID = &d
	}
	return &c
}

type fixedPricing struct {
	cfg pricing.PricingConfig
}

func (p fixedPricing) Config(context.Context, string) (pricing.PricingConfig, error) {
	return p.cfg, nil
}

// straightRoutes returns the great-circle distance, scaled by detour when
// set, with a fixed duration.
type straightRoutes struct {
	duration time.Duration
	detour   float64
}

func (r straightRoutes) Route(_ context.Context, origin, destination types.Point) (routing.Route, error) {
	meters := geo.HaversineMeters(origin, destination)
	if r.detour > 0 {
		meters *= r.detour
	}
	return routing.Route{
		Origin:         origin,
		Destination:    destination,
		Path:           []types.Point{origin, destination},
		DistanceMeters: meters,
		Duration:       r.duration,
	}, nil
}

type stubNearby struct {
	mu      sync.Mutex
	matches []matching.Match
	queries []matching.NearbyQuery
}

func (n *stubNearby) FindNearby(_ context.Context, q matching.NearbyQuery) ([]matching.Match, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queries = append(n.queries, q)
	return n.matches, nil
}

type notice struct {
	UserID types.ID
	Title  string
	Body   string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notice
}

func (n *recordingNotifier) Notify(userID types.ID, title, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notice{UserID: userID, Title: title, Body: body})
}

func (n *recordingNotifier) to(userID types.ID) []notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notice
	for _, s := range n.sent {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out
}

var (
	testNow     = time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)
	testPricing = pricing.PricingConfig{
		Rate:           pricing.Rate{BaseFare: 15, PerKmRate: 1.5},
		CommissionRate: 0.1,
		MinimumFare:    40,
		BonusAmount:    20,
	}
	testLifecycle = config.LifecycleConfig{
		StartEarly:          60 * time.Minute,
		StartLate:           30 * time.Minute,
		ConflictBuffer:      2 * time.Hour,
		PassengerLeave:      config.LeaveRule{ForbiddenWithin: 6 * time.Hour, PenaltyWithin: 12 * time.Hour, Penalty: 30},
		DriverLeave:         config.LeaveRule{ForbiddenWithin: 6 * time.Hour, PenaltyWithin: 12 * time.Hour, Penalty: 30},
		PaymentReminderLead: 8 * time.Hour,
		PaymentGrace:        time.Hour,
		Timezone:            "UTC",
		Currency:            "EGP",
	}
)

type harness struct {
	svc      *Service
	repo     *memRepo
	notifier *recordingNotifier
	nearby   *stubNearby
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)

	h := &harness{
		repo:     newMemRepo(),
		notifier: &recordingNotifier{},
		nearby:   &stubNearby{},
	}
	svc, err := NewService(Deps{
		Repo:     h.repo,
		Pricing:  fixedPricing{cfg: testPricing},
		Routes:   straightRoutes{duration: time.Hour},
		Nearby:   h.nearby,
		Notifier: h.notifier,
		Config:   testLifecycle,
		Log:      l,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.now = func() time.Time { return testNow }
	h.svc = svc
	return h
}

var (
	cairo = types.Point{Lat: 30.0, Lng: 31.0}
	north = types.Point{Lat: 31.0, Lng: 31.0}
)

// seedTrip stores a trip starting startIn from testNow with one member per
// userID, each holding one seat and a fare of 100.
func (h *harness) seedTrip(id types.ID, b BookingType, status Status, startIn time.Duration, userIDs ...types.ID) *Trip {
	start := testNow.Add(startIn)
	t := &Trip{
		ID:                 id,
		CreatorID:          "creator",
		Status:             status,
		BookingType:        b,
		From:               cairo,
		To:                 north,
		TripDate:           start.Format(dateLayout),
		StartTime:          start,
		EndTime:            start.Add(2 * time.Hour),
		DistanceKm:         111,
		Duration:           2 * time.Hour,
		UserHasEnoughMoney: true,
		CreatedAt:          testNow.Add(-48 * time.Hour),
	}
	if len(userIDs) > 0 {
		t.CreatorID = userIDs[0]
	}
	for i, uid := range userIDs {
		m := Member{
			ID:            types.ID(string(id) + "-m" + string(rune('0'+i))),
			TripID:        id,
			UserID:        uid,
			Pickup:        cairo,
			Drop:          north,
			SeatsBooked:   1,
			PassengerFare: 100,
			DriverShare:   90,
			AppCommission: 10,
			CreatedAt:     t.CreatedAt,
		}
		t.Members = append(t.Members, m)
		t.SeatsBooked++
		AddFare(t, pricing.FareBreakdown{PassengerFare: 100, DriverShare: 90, AppCommission: 10})
	}
	h.repo.putTrip(t)
	return t
}

func (h *harness) withDriver(id types.ID, driverID types.ID) {
	t := h.repo.trip(id)
	t.DriverID = &driverID
	h.repo.putTrip(t)
}
