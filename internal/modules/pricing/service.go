// README: Fare calculator (pure) and the settings-backed pricing service.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	ErrSettingsNotFound = errors.New("pricing settings not found")
	ErrValidation       = errors.New("invalid pricing input")
)

const maxSeats = 3

// Calculate prices distanceKm for seats passengers:
// fare = ceil((base + km*perKm) * seats), commission = ceil(fare * rate).
func Calculate(distanceKm float64, seats int, cfg PricingConfig) (FareBreakdown, error) {
	if distanceKm < 0 || math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) {
		return FareBreakdown{}, fmt.Errorf("%w: distance %v", ErrValidation, distanceKm)
	}
	if seats < 1 || seats > maxSeats {
		return FareBreakdown{}, fmt.Errorf("%w: seats %d", ErrValidation, seats)
	}
	fare := int64(math.Ceil((cfg.Rate.BaseFare + distanceKm*cfg.Rate.PerKmRate) * float64(seats)))
	return split(fare, cfg.CommissionRate), nil
}

// Price applies the minimum fare and, when bonusBalance covers it, the bonus
// discount to the computed fare. The minimum never rejects; it raises the
// charged fare and sets Warning.
func Price(distanceKm float64, seats int, cfg PricingConfig, bonusBalance int64) (Quote, error) {
	computed, err := Calculate(distanceKm, seats, cfg)
	if err != nil {
		return Quote{}, err
	}
	q := Quote{
		DistanceKm:   distanceKm,
		Seats:        seats,
		OriginalFare: computed.PassengerFare,
	}

	charged := computed.PassengerFare
	if charged < cfg.MinimumFare {
		charged = cfg.MinimumFare
		q.MinimumApplied = true
		q.Warning = fmt.Sprintf("fare is below the minimum of %d; the minimum fare will be charged", cfg.MinimumFare)
	}
	if cfg.BonusAmount > 0 && bonusBalance >= cfg.BonusAmount {
		q.HasBonus = true
		q.Discount = min(cfg.BonusAmount, charged)
		charged -= q.Discount
	}

	q.FinalFare = charged
	q.Breakdown = split(charged, cfg.CommissionRate)
	return q, nil
}

func split(fare int64, commissionRate float64) FareBreakdown {
	commission := int64(math.Ceil(float64(fare) * commissionRate))
	if commission > fare {
		commission = fare
	}
	return FareBreakdown{
		PassengerFare: fare,
		DriverShare:   fare - commission,
		AppCommission: commission,
	}
}

type SettingsStore interface {
	GetRate(ctx context.Context, bookingType string) (Rate, error)
	GetSettings(ctx context.Context) (Settings, error)
}

type Service struct {
	store SettingsStore
}

func NewService(store SettingsStore) *Service {
	return &Service{store: store}
}

// Config loads the pricing parameters for a booking type.
func (s *Service) Config(ctx context.Context, bookingType string) (PricingConfig, error) {
	rate, err := s.store.GetRate(ctx, bookingType)
	if err != nil {
		return PricingConfig{}, err
	}
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return PricingConfig{}, err
	}
	return PricingConfig{
		Rate:           rate,
		CommissionRate: settings.CommissionRate,
		MinimumFare:    settings.MinimumFare,
		BonusAmount:    settings.BonusAmount,
	}, nil
}
