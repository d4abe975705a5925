package reputation

import "time"

const streakBonusInterval = 7

// advanceStreak applies one day of activity to a streak. It returns the new
// consecutive-day count and whether the periodic bonus fires. The bonus fires
// only on the increment that lands exactly on a multiple of the interval, so
// an unbroken streak pays out on days 7, 14, 21 and never retroactively.
func advanceStreak(lastActive *time.Time, current int, today time.Time) (int, bool) {
	if lastActive == nil {
		return 1, false
	}

	switch daysBetween(*lastActive, today) {
	case 0:
		// multiple actions on the same day do not inflate the streak
		return current, false
	case 1:
		next := current + 1
		return next, next%streakBonusInterval == 0
	default:
		return 1, false
	}
}

// daysBetween returns the whole calendar days from a to b, ignoring clock time.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	start := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	end := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start) / (24 * time.Hour))
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
