package booking

import (
	"fmt"
	"time"
)

// TimeSlot is one of the fixed daily appointment windows.
type TimeSlot struct {
	Label       string
	StartHour   int
	StartMinute int
}

// TimeSlots are the bookable windows, in display order.
var TimeSlots = []TimeSlot{
	{"8:15-9:15", 8, 15},
	{"9:30-10:30", 9, 30},
	{"10:45-11:45", 10, 45},
	{"13:15-14:15", 13, 15},
	{"14:30-15:30", 14, 30},
	{"15:45-16:45", 15, 45},
}

// LookupSlot finds a slot by its label.
func LookupSlot(label string) (TimeSlot, bool) {
	for _, s := range TimeSlots {
		if s.Label == label {
			return s, true
		}
	}
	return TimeSlot{}, false
}

// StartOn returns the slot's start time on the calendar day of date, in
// date's location.
func (s TimeSlot) StartOn(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, s.StartHour, s.StartMinute, 0, 0, date.Location())
}

// SlotOption is a slot as offered to the user.
type SlotOption struct {
	Label    string `json:"label"`
	Disabled bool   `json:"disabled"`
}

// SlotAvailability reports which slots can still be booked on date. Slots on
// a later day are always available; on the same day a slot is disabled once
// its start time has been reached; every slot of an earlier day is disabled.
func SlotAvailability(date, now time.Time) []SlotOption {
	now = now.In(date.Location())
	day := truncateDay(date)
	today := truncateDay(now)
	out := make([]SlotOption, len(TimeSlots))
	for i, s := range TimeSlots {
		var disabled bool
		switch {
		case day.After(today):
			disabled = false
		case day.Before(today):
			disabled = true
		default:
			disabled = !now.Before(s.StartOn(day))
		}
		out[i] = SlotOption{Label: s.Label, Disabled: disabled}
	}
	return out
}

// AllSlotsPast reports whether no slot on date can be booked any more.
func AllSlotsPast(date, now time.Time) bool {
	for _, o := range SlotAvailability(date, now) {
		if !o.Disabled {
			return false
		}
	}
	return true
}

// ParseDate parses an ISO date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
