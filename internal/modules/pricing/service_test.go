package pricing

import (
	"context"
	"errors"
	"testing"
)

func testConfig() PricingConfig {
	return PricingConfig{
		Rate:           Rate{BookingType: "TRIPLE", BaseFare: 15, PerKmRate: 1.5},
		CommissionRate: 0.1,
		MinimumFare:    40,
		BonusAmount:    20,
	}
}

func TestCalculate(t *testing.T) {
	cfg := testConfig()
	tests := []struct {
		name       string
		km         float64
		seats      int
		wantFare   int64
		wantCommis int64
	}{
		// 15*1 -> 15, commission ceil(1.5) = 2
		{name: "zero distance one seat", km: 0, seats: 1, wantFare: 15, wantCommis: 2},
		// 15*3 -> 45, commission ceil(4.5) = 5
		{name: "zero distance three seats", km: 0, seats: 3, wantFare: 45, wantCommis: 5},
		// (15 + 100*1.5) = 165, commission ceil(16.5) = 17
		{name: "100km one seat", km: 100, seats: 1, wantFare: 165, wantCommis: 17},
		// (15 + 10.2*1.5) = 30.3 -> ceil(60.6) = 61, commission ceil(6.1) = 7
		{name: "fractional fare rounds up", km: 10.2, seats: 2, wantFare: 61, wantCommis: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calculate(tt.km, tt.seats, cfg)
			if err != nil {
				t.Fatalf("Calculate: %v", err)
			}
			if got.PassengerFare != tt.wantFare {
				t.Errorf("fare = %d, want %d", got.PassengerFare, tt.wantFare)
			}
			if got.AppCommission != tt.wantCommis {
				t.Errorf("commission = %d, want %d", got.AppCommission, tt.wantCommis)
			}
			if got.DriverShare+got.AppCommission != got.PassengerFare {
				t.Errorf("share %d + commission %d != fare %d", got.DriverShare, got.AppCommission, got.PassengerFare)
			}
		})
	}
}

func TestCalculate_Monotonic(t *testing.T) {
	cfg := testConfig()
	for seats := 1; seats <= 3; seats++ {
		prev := int64(-1)
		for km := 0.0; km <= 300; km += 7.3 {
			got, err := Calculate(km, seats, cfg)
			if err != nil {
				t.Fatalf("Calculate(%v, %d): %v", km, seats, err)
			}
			if got.PassengerFare < prev {
				t.Fatalf("fare decreased at km=%v seats=%d: %d < %d", km, seats, got.PassengerFare, prev)
			}
			if got.DriverShare+got.AppCommission != got.PassengerFare {
				t.Fatalf("breakdown does not sum at km=%v seats=%d: %+v", km, seats, got)
			}
			prev = got.PassengerFare
		}
	}
	for km := 0.0; km <= 300; km += 25 {
		one, _ := Calculate(km, 1, cfg)
		two, _ := Calculate(km, 2, cfg)
		three, _ := Calculate(km, 3, cfg)
		if one.PassengerFare > two.PassengerFare || two.PassengerFare > three.PassengerFare {
			t.Fatalf("fare not monotonic in seats at km=%v: %d %d %d", km, one.PassengerFare, two.PassengerFare, three.PassengerFare)
		}
	}
}

func TestCalculate_InvalidInput(t *testing.T) {
	cfg := testConfig()
	cases := []struct {
		km    float64
		seats int
	}{
		{-1, 1},
		{10, 0},
		{10, 4},
	}
	for _, c := range cases {
		if _, err := Calculate(c.km, c.seats, cfg); !errors.Is(err, ErrValidation) {
			t.Errorf("Calculate(%v, %d) error = %v, want ErrValidation", c.km, c.seats, err)
		}
	}
}

func TestPrice_MinimumFare(t *testing.T) {
	cfg := testConfig()
	q, err := Price(0, 1, cfg, 0)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if q.OriginalFare != 15 {
		t.Errorf("original fare = %d, want 15", q.OriginalFare)
	}
	if q.FinalFare != cfg.MinimumFare {
		t.Errorf("final fare = %d, want minimum %d", q.FinalFare, cfg.MinimumFare)
	}
	if !q.MinimumApplied || q.Warning == "" {
		t.Errorf("expected minimum-fare warning, got %+v", q)
	}
	if q.Breakdown.PassengerFare != cfg.MinimumFare ||
		q.Breakdown.DriverShare+q.Breakdown.AppCommission != q.Breakdown.PassengerFare {
		t.Errorf("breakdown not re-split on minimum fare: %+v", q.Breakdown)
	}
}

func TestPrice_AboveMinimumHasNoWarning(t *testing.T) {
	q, err := Price(100, 1, testConfig(), 0)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if q.MinimumApplied || q.Warning != "" {
		t.Errorf("unexpected warning: %+v", q)
	}
	if q.FinalFare != q.OriginalFare {
		t.Errorf("final %d != original %d", q.FinalFare, q.OriginalFare)
	}
}

func TestPrice_Bonus(t *testing.T) {
	cfg := testConfig()

	withBonus, err := Price(100, 1, cfg, 25)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if !withBonus.HasBonus || withBonus.Discount != 20 {
		t.Fatalf("expected a 20 discount, got %+v", withBonus)
	}
	if withBonus.FinalFare != withBonus.OriginalFare-20 {
		t.Errorf("final fare = %d, want %d", withBonus.FinalFare, withBonus.OriginalFare-20)
	}
	b := withBonus.Breakdown
	if b.PassengerFare != withBonus.FinalFare || b.DriverShare+b.AppCommission != b.PassengerFare {
		t.Errorf("breakdown inconsistent: %+v", b)
	}

	short, err := Price(100, 1, cfg, 19)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if short.HasBonus || short.Discount != 0 || short.FinalFare != short.OriginalFare {
		t.Errorf("bonus must not apply below the bonus amount: %+v", short)
	}
}

type stubSettings struct {
	rate     Rate
	rateErr  error
	settings Settings
	setErr   error
}

func (s stubSettings) GetRate(_ context.Context, bt string) (Rate, error) {
	if s.rateErr != nil {
		return Rate{}, s.rateErr
	}
	r := s.rate
	r.BookingType = bt
	return r, nil
}

func (s stubSettings) GetSettings(_ context.Context) (Settings, error) {
	return s.settings, s.setErr
}

func TestService_Config(t *testing.T) {
	svc := NewService(stubSettings{
		rate:     Rate{BaseFare: 10, PerKmRate: 2},
		settings: Settings{CommissionRate: 0.15, MinimumFare: 30, BonusAmount: 20},
	})
	cfg, err := svc.Config(context.Background(), "DOUBLE")
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if cfg.Rate.BookingType != "DOUBLE" || cfg.Rate.BaseFare != 10 || cfg.CommissionRate != 0.15 || cfg.MinimumFare != 30 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestService_ConfigMissingSettings(t *testing.T) {
	svc := NewService(stubSettings{setErr: ErrSettingsNotFound})
	if _, err := svc.Config(context.Background(), "SINGLE"); !errors.Is(err, ErrSettingsNotFound) {
		t.Fatalf("expected ErrSettingsNotFound, got %v", err)
	}
	svc = NewService(stubSettings{rateErr: ErrSettingsNotFound})
	if _, err := svc.Config(context.Background(), "SINGLE"); !errors.Is(err, ErrSettingsNotFound) {
		t.Fatalf("expected ErrSettingsNotFound, got %v", err)
	}
}
