package util

import "time"

// NSE trading session in exchange-local time.
const (
	marketOpenHour    = 9
	marketOpenMinute  = 15
	marketCloseHour   = 15
	marketCloseMinute = 30
)

// IsMarketOpen reports whether the NSE cash/derivatives session is open at
// time t (9:15-15:30, Monday to Friday). Exchange holidays are not checked;
// the broker rejects orders on holidays anyway.
func IsMarketOpen(t time.Time) bool {
	wd := t.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	minutes := t.Hour()*60 + t.Minute()
	open := marketOpenHour*60 + marketOpenMinute
	close := marketCloseHour*60 + marketCloseMinute
	return minutes >= open && minutes <= close
}
