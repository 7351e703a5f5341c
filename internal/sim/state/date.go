package state

import "fmt"

// Date is a simulated calendar day. The calendar is a fixed 365-day year
// with no leap days, so tick arithmetic is exact and identical everywhere.
type Date struct {
	Year  int32 `json:"year"`
	Month uint8 `json:"month"` // 1..12
	Day   uint8 `json:"day"`   // 1..monthDays
}

var monthDays = [13]uint8{0, 31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

var monthPrefix = [13]int32{0, 0, 31, 59, 90, 120, 151, 181, 212, 243, 273, 304, 334}

const daysPerYear = 365

// AddDays advances the date by n days (n >= 0).
func (d Date) AddDays(n int) Date {
	for i := 0; i < n; i++ {
		d.Day++
		if d.Day > monthDays[d.Month] {
			d.Day = 1
			d.Month++
			if d.Month > 12 {
				d.Month = 1
				d.Year++
			}
		}
	}
	return d
}

// DayNumber returns the absolute day ordinal of d, for tick arithmetic and
// truce comparisons.
func (d Date) DayNumber() int64 {
	return int64(d.Year)*daysPerYear + int64(monthPrefix[d.Month]) + int64(d.Day) - 1
}

// Before reports whether d precedes o.
func (d Date) Before(o Date) bool { return d.DayNumber() < o.DayNumber() }

// MonthStart reports whether d is the first day of a month, the boundary on
// which the economic systems run.
func (d Date) MonthStart() bool { return d.Day == 1 }

// YearStart reports whether d is January 1st.
func (d Date) YearStart() bool { return d.Month == 1 && d.Day == 1 }

func (d Date) String() string {
	return fmt.Sprintf("%d.%d.%d", d.Year, d.Month, d.Day)
}
