// README: Trip persistence; Repository for reads, Tx for row-locked writes, backed by PostgreSQL.
package trip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tripshare/internal/types"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Get(ctx context.Context, id types.ID) (*Trip, error)
	ListOpenBetween(ctx context.Context, from, to time.Time) ([]*Trip, error)
	ListFull(ctx context.Context, after time.Time, skip, take int) ([]*Trip, error)
	ListPendingPayment(ctx context.Context, now time.Time) ([]*Trip, error)
	ListExpired(ctx context.Context, today string) ([]*Trip, error)
	ActiveWindows(ctx context.Context, userID types.ID) ([]Window, error)
	GetAccount(ctx context.Context, userID types.ID) (Account, error)
	ListDriverIDs(ctx context.Context) ([]types.ID, error)
}

// Tx is the write side. LockTrip and LockAccount hold their rows until the
// transaction ends.
type Tx interface {
	LockTrip(ctx context.Context, id types.ID) (*Trip, error)
	LockAccount(ctx context.Context, userID types.ID) (Account, error)
	// ActiveWindows and AssignedToDriver read inside the transaction. Callers
	// lock the actor's account first so bookings by one user serialize.
	ActiveWindows(ctx context.Context, userID types.ID) ([]Window, error)
	AssignedToDriver(ctx context.Context, driverID types.ID, from, to time.Time) ([]*Trip, error)
	CreateTrip(ctx context.Context, t *Trip) error
	AddMember(ctx context.Context, m *Member) error
	RemoveMember(ctx context.Context, memberID types.ID) error
	// UpdateTrip writes t's scalar fields if the stored version still equals
	// expectVersion. On success t.StatusVersion is advanced.
	UpdateTrip(ctx context.Context, t *Trip, expectVersion int) (bool, error)
	PostEntry(ctx context.Context, e LedgerEntry) error
	AdjustBonus(ctx context.Context, userID types.ID, delta int64) error
	AppendEvent(ctx context.Context, e *Event) error
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

const tripColumns = `
	id, creator_id, driver_id, status, status_version, booking_type,
	from_lat, from_lng, to_lat, to_lng,
	trip_date, start_time, end_time, distance_km, duration_sec, seats_booked,
	total_fare, driver_share, app_commission,
	user_has_enough_money, is_paid, notified_8h_at, notified_30m, notified_15m,
	created_at, started_at, completed_at, cancelled_at, cancel_reason`

const memberColumns = `
	id, trip_id, user_id, pickup_lat, pickup_lng, drop_lat, drop_lng,
	seats_booked, passenger_fare, driver_share, app_commission, created_at`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Trip, error) {
	return getTrip(ctx, s.db, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, id)
}

func (s *Store) ListOpenBetween(ctx context.Context, from, to time.Time) ([]*Trip, error) {
	return listTrips(ctx, s.db, `
		SELECT `+tripColumns+` FROM trips
		WHERE status = 'OPEN' AND start_time BETWEEN $1 AND $2
		ORDER BY start_time`, from, to)
}

func (s *Store) ListFull(ctx context.Context, after time.Time, skip, take int) ([]*Trip, error) {
	return listTrips(ctx, s.db, `
		SELECT `+tripColumns+` FROM trips
		WHERE status = 'FULL' AND user_has_enough_money AND start_time > $1
		ORDER BY start_time
		OFFSET $2 LIMIT $3`, after, skip, take)
}

func (s *Store) ListPendingPayment(ctx context.Context, now time.Time) ([]*Trip, error) {
	return listTrips(ctx, s.db, `
		SELECT `+tripColumns+` FROM trips
		WHERE NOT user_has_enough_money
		  AND status IN ('OPEN','FULL')
		  AND start_time > $1
		ORDER BY start_time`, now)
}

func (s *Store) ListExpired(ctx context.Context, today string) ([]*Trip, error) {
	return listTrips(ctx, s.db, `
		SELECT `+tripColumns+` FROM trips
		WHERE trip_date < $1::date
		  AND status IN ('OPEN','FULL','ASSIGNED')`, today)
}

func (s *Store) ActiveWindows(ctx context.Context, userID types.ID) ([]Window, error) {
	return activeWindows(ctx, s.db, userID)
}

func (s *Store) GetAccount(ctx context.Context, userID types.ID) (Account, error) {
	return getAccount(ctx, s.db, `SELECT id, role, balance, bonus FROM users WHERE id = $1`, userID)
}

func (s *Store) ListDriverIDs(ctx context.Context) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM users WHERE role = 'DRIVER'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ID
	for rows.Next() {
		var id types.ID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockTrip(ctx context.Context, id types.ID) (*Trip, error) {
	return getTrip(ctx, t.tx, `SELECT `+tripColumns+` FROM trips WHERE id = $1 FOR UPDATE`, id)
}

func (t *pgTx) LockAccount(ctx context.Context, userID types.ID) (Account, error) {
	return getAccount(ctx, t.tx, `SELECT id, role, balance, bonus FROM users WHERE id = $1 FOR UPDATE`, userID)
}

func (t *pgTx) ActiveWindows(ctx context.Context, userID types.ID) ([]Window, error) {
	return activeWindows(ctx, t.tx, userID)
}

func (t *pgTx) AssignedToDriver(ctx context.Context, driverID types.ID, from, to time.Time) ([]*Trip, error) {
	return listTrips(ctx, t.tx, `
		SELECT `+tripColumns+` FROM trips
		WHERE driver_id = $1
		  AND status = 'ASSIGNED'
		  AND NOT is_paid
		  AND start_time BETWEEN $2 AND $3`, string(driverID), from, to)
}

func (t *pgTx) CreateTrip(ctx context.Context, tr *Trip) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO trips (
			id, creator_id, driver_id, status, status_version, booking_type,
			from_lat, from_lng, to_lat, to_lng,
			trip_date, start_time, end_time, distance_km, duration_sec, seats_booked,
			total_fare, driver_share, app_commission,
			user_has_enough_money, is_paid, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11::date, $12, $13, $14, $15, $16,
			$17, $18, $19,
			$20, $21, $22
		)`,
		string(tr.ID), string(tr.CreatorID), toStringPtr(tr.DriverID), string(tr.Status), tr.StatusVersion, string(tr.BookingType),
		tr.From.Lat, tr.From.Lng, tr.To.Lat, tr.To.Lng,
		tr.TripDate, tr.StartTime, tr.EndTime, tr.DistanceKm, int64(tr.Duration/time.Second), tr.SeatsBooked,
		tr.TotalFare, tr.DriverShare, tr.AppCommission,
		tr.UserHasEnoughMoney, tr.IsPaid, tr.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}
	for i := range tr.Members {
		if err := t.AddMember(ctx, &tr.Members[i]); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) AddMember(ctx context.Context, m *Member) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO trip_members (`+memberColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		string(m.ID), string(m.TripID), string(m.UserID),
		m.Pickup.Lat, m.Pickup.Lng, m.Drop.Lat, m.Drop.Lng,
		m.SeatsBooked, m.PassengerFare, m.DriverShare, m.AppCommission, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (t *pgTx) RemoveMember(ctx context.Context, memberID types.ID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM trip_members WHERE id = $1`, string(memberID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrNotMember
	}
	return nil
}

func (t *pgTx) UpdateTrip(ctx context.Context, tr *Trip, expectVersion int) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE trips
		SET driver_id = $1,
		    status = $2,
		    status_version = status_version + 1,
		    from_lat = $3, from_lng = $4, to_lat = $5, to_lng = $6,
		    seats_booked = $7,
		    total_fare = $8, driver_share = $9, app_commission = $10,
		    user_has_enough_money = $11, is_paid = $12,
		    notified_8h_at = $13, notified_30m = $14, notified_15m = $15,
		    started_at = $16, completed_at = $17, cancelled_at = $18, cancel_reason = $19
		WHERE id = $20 AND status_version = $21`,
		toStringPtr(tr.DriverID),
		string(tr.Status),
		tr.From.Lat, tr.From.Lng, tr.To.Lat, tr.To.Lng,
		tr.SeatsBooked,
		tr.TotalFare, tr.DriverShare, tr.AppCommission,
		tr.UserHasEnoughMoney, tr.IsPaid,
		tr.Notified8hAt, tr.Notified30m, tr.Notified15m,
		tr.StartedAt, tr.CompletedAt, tr.CancelledAt, tr.CancelReason,
		string(tr.ID), expectVersion,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	tr.StatusVersion = expectVersion + 1
	return true, nil
}

func (t *pgTx) PostEntry(ctx context.Context, e LedgerEntry) error {
	var balance int64
	err := t.tx.QueryRow(ctx, `
		UPDATE users
		SET balance = balance + $2
		WHERE id = $1 AND ($3 OR balance + $2 >= 0)
		RETURNING balance`,
		string(e.UserID), e.Amount, e.AllowOverdraft,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		acct, lookupErr := t.LockAccount(ctx, e.UserID)
		if lookupErr != nil {
			return lookupErr
		}
		return &InsufficientBalanceError{UserID: e.UserID, Needed: -e.Amount, Available: acct.Balance}
	}
	if err != nil {
		return err
	}

	if e.ID == "" {
		e.ID = types.ID(uuid.NewString())
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, user_id, trip_id, amount, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.ID), string(e.UserID), string(e.TripID), e.Amount, string(e.Kind), e.CreatedAt,
	)
	return err
}

func (t *pgTx) AdjustBonus(ctx context.Context, userID types.ID, delta int64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE users SET bonus = GREATEST(bonus + $2, 0) WHERE id = $1`,
		string(userID), delta,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrUserNotFound
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, e *Event) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO trip_state_events (
			trip_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.TripID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

func getTrip(ctx context.Context, q querier, sql string, id types.ID) (*Trip, error) {
	t, err := scanTrip(q.QueryRow(ctx, sql, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := loadMembers(ctx, q, []*Trip{t}); err != nil {
		return nil, err
	}
	return t, nil
}

func listTrips(ctx context.Context, q querier, sql string, args ...any) ([]*Trip, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var out []*Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := loadMembers(ctx, q, out); err != nil {
		return nil, err
	}
	return out, nil
}

func scanTrip(row pgx.Row) (*Trip, error) {
	var (
		t           Trip
		driverID    *string
		tripDate    time.Time
		durationSec int64
	)
	err := row.Scan(
		&t.ID, &t.CreatorID, &driverID, &t.Status, &t.StatusVersion, &t.BookingType,
		&t.From.Lat, &t.From.Lng, &t.To.Lat, &t.To.Lng,
		&tripDate, &t.StartTime, &t.EndTime, &t.DistanceKm, &durationSec, &t.SeatsBooked,
		&t.TotalFare, &t.DriverShare, &t.AppCommission,
		&t.UserHasEnoughMoney, &t.IsPaid, &t.Notified8hAt, &t.Notified30m, &t.Notified15m,
		&t.CreatedAt, &t.StartedAt, &t.CompletedAt, &t.CancelledAt, &t.CancelReason,
	)
	if err != nil {
		return nil, err
	}
	if driverID != nil {
		d := types.ID(*driverID)
		t.DriverID = &d
	}
	t.TripDate = tripDate.Format(dateLayout)
	t.Duration = time.Duration(durationSec) * time.Second
	return &t, nil
}

func loadMembers(ctx context.Context, q querier, trips []*Trip) error {
	if len(trips) == 0 {
		return nil
	}
	ids := make([]string, len(trips))
	byID := make(map[types.ID]*Trip, len(trips))
	for i, t := range trips {
		ids[i] = string(t.ID)
		byID[t.ID] = t
	}

	rows, err := q.Query(ctx, `
		SELECT `+memberColumns+` FROM trip_members
		WHERE trip_id = ANY($1)
		ORDER BY created_at, id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var m Member
		if err := rows.Scan(
			&m.ID, &m.TripID, &m.UserID, &m.Pickup.Lat, &m.Pickup.Lng, &m.Drop.Lat, &m.Drop.Lng,
			&m.SeatsBooked, &m.PassengerFare, &m.DriverShare, &m.AppCommission, &m.CreatedAt,
		); err != nil {
			return err
		}
		if t, ok := byID[m.TripID]; ok {
			t.Members = append(t.Members, m)
		}
	}
	return rows.Err()
}

func activeWindows(ctx context.Context, q querier, userID types.ID) ([]Window, error) {
	rows, err := q.Query(ctx, `
		SELECT t.id, t.start_time, t.end_time
		FROM trips t
		JOIN trip_members m ON m.trip_id = t.id
		WHERE m.user_id = $1
		  AND t.status NOT IN ('CANCELLED','COMPLETED')`, string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Window
	for rows.Next() {
		var w Window
		var end *time.Time
		if err := rows.Scan(&w.TripID, &w.Start, &end); err != nil {
			return nil, err
		}
		if end != nil {
			w.End = *end
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func getAccount(ctx context.Context, q querier, sql string, userID types.ID) (Account, error) {
	var a Account
	err := q.QueryRow(ctx, sql, string(userID)).Scan(&a.UserID, &a.Role, &a.Balance, &a.Bonus)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrUserNotFound
	}
	return a, err
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
