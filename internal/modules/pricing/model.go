// README: Pricing parameters per booking type plus global fare settings.
package pricing

// Rate is the per-booking-type tariff.
type Rate struct {
	BookingType string
	BaseFare    float64
	PerKmRate   float64
}

// Settings are the global fare settings shared by every booking type.
type Settings struct {
	CommissionRate float64
	MinimumFare    int64
	BonusAmount    int64
}

// PricingConfig is everything Calculate and Price need, passed explicitly per call.
type PricingConfig struct {
	Rate           Rate
	CommissionRate float64
	MinimumFare    int64
	BonusAmount    int64
}

// FareBreakdown always satisfies PassengerFare == DriverShare + AppCommission.
type FareBreakdown struct {
	PassengerFare int64 `json:"passenger_fare"`
	DriverShare   int64 `json:"driver_share"`
	AppCommission int64 `json:"app_commission"`
}

// Quote is the priced result shown to a passenger before booking.
type Quote struct {
	DistanceKm     float64       `json:"distance_km"`
	Seats          int           `json:"seats"`
	OriginalFare   int64         `json:"original_fare"`
	Discount       int64         `json:"discount"`
	FinalFare      int64         `json:"final_fare"`
	HasBonus       bool          `json:"has_bonus"`
	MinimumApplied bool          `json:"minimum_applied"`
	Warning        string        `json:"warning,omitempty"`
	Currency       string        `json:"currency,omitempty"`
	Breakdown      FareBreakdown `json:"breakdown"`
}
