// README: Late-withdrawal penalty tiers and the driver start window.
package trip

import (
	"time"

	"tripshare/internal/config"
)

// LeavePenalty returns the charge for leaving untilStart before departure.
func LeavePenalty(untilStart time.Duration, rule config.LeaveRule) (int64, error) {
	switch {
	case untilStart < rule.ForbiddenWithin:
		return 0, ErrLeaveTooLate
	case untilStart <= rule.PenaltyWithin:
		return rule.Penalty, nil
	default:
		return 0, nil
	}
}

// CheckStartWindow accepts now inside [start-early, start+late].
func CheckStartWindow(now, start time.Time, early, late time.Duration) error {
	opens := start.Add(-early)
	closes := start.Add(late)
	if now.Before(opens) {
		return &OutsideStartWindowError{TooEarly: true, Opens: opens, Closes: closes}
	}
	if now.After(closes) {
		return &OutsideStartWindowError{Opens: opens, Closes: closes}
	}
	return nil
}
