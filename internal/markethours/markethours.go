// Package markethours answers whether the domestic exchange (B3) is open.
//
// The check uses the wall clock of the time value it is given. Holidays and
// timezone conversion are not taken into account.
package markethours

import (
	"fmt"
	"time"
)

// Market is the exchange the status refers to.
const Market = "B3"

// Trading window in local time, Mon-Fri.
const (
	OpenHour  = 9
	CloseHour = 18
)

// IsOpen reports whether t falls inside the trading window.
func IsOpen(t time.Time) bool {
	return IsWeekday(t) && t.Hour() >= OpenHour && t.Hour() < CloseHour
}

// IsWeekday returns true if t is Mon–Fri.
func IsWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// NextOpen returns the next opening time at or after t. If the market is
// open at t, the following session's opening is returned.
func NextOpen(t time.Time) time.Time {
	todayOpen := time.Date(t.Year(), t.Month(), t.Day(), OpenHour, 0, 0, 0, t.Location())
	if t.Before(todayOpen) && IsWeekday(t) {
		return todayOpen
	}
	d := todayOpen.AddDate(0, 0, 1)
	for !IsWeekday(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// TodayClose returns the closing time of t's calendar day.
func TodayClose(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), CloseHour, 0, 0, 0, t.Location())
}

// Status is the market status block served with summaries.
type Status struct {
	Market    string    `json:"market"`
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

// StatusAt builds the status for t. NextClose is only set while open.
func StatusAt(t time.Time) Status {
	s := Status{Market: Market, IsOpen: IsOpen(t), NextOpen: NextOpen(t)}
	if s.IsOpen {
		s.NextClose = TodayClose(t)
	}
	return s
}

// String renders the status for console output.
func (s Status) String() string {
	if s.IsOpen {
		return fmt.Sprintf("%s: OPEN (closes %s)", s.Market, s.NextClose.Format("15:04"))
	}
	return fmt.Sprintf("%s: CLOSED (opens %s %s)", s.Market,
		s.NextOpen.Weekday().String()[:3], s.NextOpen.Format("15:04"))
}
