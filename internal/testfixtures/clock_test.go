package testfixtures

import (
	"testing"
	"time"

	"github.com/example/hall-booking/internal/calendar"
)

func TestClockDefaultsToReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
}

func TestClockAdvanceAndSet(t *testing.T) {
	start := time.Date(2026, time.March, 9, 9, 26, 0, 0, time.UTC)
	clock := NewClock(start)

	updated := clock.Advance(90 * time.Minute)
	if !updated.Equal(start.Add(90 * time.Minute)) {
		t.Fatalf("advance returned %v", updated)
	}

	clock.Set(start.Add(2 * time.Hour))
	if got := clock.Current(); !got.Equal(start.Add(2 * time.Hour)) {
		t.Fatalf("expected %v, got %v", start.Add(2*time.Hour), got)
	}
}

func TestClockNowFunc(t *testing.T) {
	clock := NewClock(time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC))
	nowFn := clock.NowFunc()

	if got := nowFn(); !got.Equal(clock.Current()) {
		t.Fatalf("expected %v from NowFunc, got %v", clock.Current(), got)
	}

	clock.Advance(time.Minute)
	if got := nowFn(); !got.Equal(clock.Current()) {
		t.Fatalf("expected updated time %v, got %v", clock.Current(), got)
	}
}

func TestClockSetWallClock(t *testing.T) {
	clock := NewClock(time.Time{})
	tokyo := time.FixedZone("JST", 9*60*60)
	date, _ := calendar.ParseDate(DefaultBookingDate)
	wall, _ := calendar.ParseClock("12:00")

	got := clock.SetWallClock(date, wall, tokyo)
	if got.Hour() != 12 || got.Location() != tokyo {
		t.Fatalf("expected 12:00 JST, got %v", got)
	}
	if !clock.Now().Equal(got) {
		t.Fatalf("expected clock to hold %v, got %v", got, clock.Now())
	}
	if utc := got.UTC(); utc.Hour() != 3 {
		t.Fatalf("expected 03:00 UTC, got %v", utc)
	}
}
