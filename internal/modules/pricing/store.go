// README: Pricing settings store backed by PostgreSQL.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetRate(ctx context.Context, bookingType string) (Rate, error) {
	r := Rate{BookingType: bookingType}
	err := s.db.QueryRow(ctx, `
		SELECT base_fare, per_km_rate
		FROM pricing_rates
		WHERE booking_type = $1`, bookingType,
	).Scan(&r.BaseFare, &r.PerKmRate)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, fmt.Errorf("%w: no rate for %s", ErrSettingsNotFound, bookingType)
	}
	if err != nil {
		return Rate{}, err
	}
	return r, nil
}

func (s *Store) GetSettings(ctx context.Context) (Settings, error) {
	var st Settings
	err := s.db.QueryRow(ctx, `
		SELECT commission_rate, minimum_fare, bonus_amount
		FROM app_settings
		WHERE id = 1`,
	).Scan(&st.CommissionRate, &st.MinimumFare, &st.BonusAmount)
	if errors.Is(err, pgx.ErrNoRows) {
		return Settings{}, fmt.Errorf("%w: app settings row missing", ErrSettingsNotFound)
	}
	if err != nil {
		return Settings{}, err
	}
	return st, nil
}
