// Package calendar holds the canonical date and wall-clock types used for
// hall bookings. Dates are local calendar days (YYYY-MM-DD) and clocks are
// minute-precision times of day (HH:MM); both are parsed once at the boundary.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidDate is returned when a date string cannot be parsed.
	ErrInvalidDate = errors.New("calendar: invalid date")
	// ErrInvalidClock is returned when a time-of-day string cannot be parsed.
	ErrInvalidClock = errors.New("calendar: invalid clock")
)

const (
	dateLayout        = "2006-01-02"
	compactDateLayout = "02012006"
)

// Date is a calendar day without a time zone.
type Date struct {
	year  int
	month time.Month
	day   int
}

// NewDate validates the components and returns the corresponding date.
func NewDate(year int, month time.Month, day int) (Date, error) {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return Date{}, fmt.Errorf("%w: %04d-%02d-%02d", ErrInvalidDate, year, int(month), day)
	}
	return Date{year: year, month: month, day: day}, nil
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{year: y, month: m, day: d}
}

// ParseDate parses a strict YYYY-MM-DD value.
func ParseDate(value string) (Date, error) {
	value = strings.TrimSpace(value)
	if len(value) != len(dateLayout) {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return DateOf(t), nil
}

// ParseCompactDate parses the DDMMYYYY form accepted from older clients.
func ParseCompactDate(value string) (Date, error) {
	value = strings.TrimSpace(value)
	if len(value) != len(compactDateLayout) || !allDigits(value) {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	t, err := time.Parse(compactDateLayout, value)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return DateOf(t), nil
}

// ParseDateInput accepts either YYYY-MM-DD or DDMMYYYY and normalizes to a Date.
func ParseDateInput(value string) (Date, error) {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) == len(compactDateLayout) && allDigits(trimmed) {
		return ParseCompactDate(trimmed)
	}
	return ParseDate(trimmed)
}

// IsZero reports whether d is the zero date.
func (d Date) IsZero() bool {
	return d.year == 0 && d.month == 0 && d.day == 0
}

// Year returns the year component.
func (d Date) Year() int { return d.year }

// Month returns the month component.
func (d Date) Month() time.Month { return d.month }

// Day returns the day-of-month component.
func (d Date) Day() int { return d.day }

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.year, int(d.month), d.day)
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to, or after other.
func (d Date) Compare(other Date) int {
	switch {
	case d.year != other.year:
		return sign(d.year - other.year)
	case d.month != other.month:
		return sign(int(d.month) - int(other.month))
	default:
		return sign(d.day - other.day)
	}
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }

// After reports whether d is strictly after other.
func (d Date) After(other Date) bool { return d.Compare(other) > 0 }

// Equal reports whether both dates denote the same day.
func (d Date) Equal(other Date) bool { return d.Compare(other) == 0 }

// AddDays returns the date n days after d. Negative n moves backwards.
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.year, d.month, d.day+n, 0, 0, 0, 0, time.UTC))
}

// FirstOfMonth returns the first day of d's month.
func (d Date) FirstOfMonth() Date {
	return Date{year: d.year, month: d.month, day: 1}
}

// LastOfMonth returns the last day of d's month.
func (d Date) LastOfMonth() Date {
	return DateOf(time.Date(d.year, d.month+1, 0, 0, 0, 0, 0, time.UTC))
}

// At combines d with a clock value in loc.
func (d Date) At(c Clock, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.year, d.month, d.day, c.minutes/60, c.minutes%60, 0, 0, loc)
}

// MarshalText encodes the date as YYYY-MM-DD.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes either accepted date form.
func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := ParseDateInput(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Clock is a minute-precision time of day in [00:00, 23:59].
type Clock struct {
	minutes int
}

// NewClock validates hour and minute and returns the clock value.
func NewClock(hour, minute int) (Clock, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("%w: %02d:%02d", ErrInvalidClock, hour, minute)
	}
	return Clock{minutes: hour*60 + minute}, nil
}

// ClockOf returns the time of day of t truncated to the minute.
func ClockOf(t time.Time) Clock {
	return Clock{minutes: t.Hour()*60 + t.Minute()}
}

// ParseClock parses a strict zero-padded HH:MM value.
func ParseClock(value string) (Clock, error) {
	value = strings.TrimSpace(value)
	if len(value) != 5 || value[2] != ':' || !allDigits(value[:2]) || !allDigits(value[3:]) {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	hour := int(value[0]-'0')*10 + int(value[1]-'0')
	minute := int(value[3]-'0')*10 + int(value[4]-'0')
	c, err := NewClock(hour, minute)
	if err != nil {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	return c, nil
}

// Minutes returns the number of minutes since midnight.
func (c Clock) Minutes() int { return c.minutes }

// String formats the clock as HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.minutes/60, c.minutes%60)
}

// Before reports whether c is strictly earlier than other.
func (c Clock) Before(other Clock) bool { return c.minutes < other.minutes }

// After reports whether c is strictly later than other.
func (c Clock) After(other Clock) bool { return c.minutes > other.minutes }

// MarshalText encodes the clock as HH:MM.
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a HH:MM value.
func (c *Clock) UnmarshalText(text []byte) error {
	parsed, err := ParseClock(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Window is a half-open interval [Start, End) on a single day.
type Window struct {
	Date  Date
	Start Clock
	End   Clock
}

// Valid reports whether the window has a positive length.
func (w Window) Valid() bool {
	return !w.Date.IsZero() && w.Start.Before(w.End)
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return time.Duration(w.End.minutes-w.Start.minutes) * time.Minute
}

// Overlaps reports whether both windows share at least one minute on the same day.
// Touching windows (one ends exactly when the other starts) do not overlap.
func (w Window) Overlaps(other Window) bool {
	if !w.Date.Equal(other.Date) {
		return false
	}
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}
