package booking

import (
	"testing"
	"time"
)

func TestSlotAvailability(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 10, d, 0, 0, 0, 0, testLoc) }

	tests := []struct {
		name string
		date time.Time
		now  time.Time
		want []bool
	}{
		{"future day", day(19), testNow, []bool{false, false, false, false, false, false}},
		{"past day", day(17), testNow, []bool{true, true, true, true, true, true}},
		{"today mid-morning", day(18), testNow, []bool{true, true, false, false, false, false}},
		{"today before opening", day(18), time.Date(2026, 10, 18, 7, 0, 0, 0, testLoc), []bool{false, false, false, false, false, false}},
		{"today at exact start", day(18), time.Date(2026, 10, 18, 13, 15, 0, 0, testLoc), []bool{true, true, true, true, false, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SlotAvailability(tt.date, tt.now)
			if len(got) != len(TimeSlots) {
				t.Fatalf("expected %d slots, got %d", len(TimeSlots), len(got))
			}
			for i, o := range got {
				if o.Label != TimeSlots[i].Label {
					t.Errorf("slot %d: expected label %s, got %s", i, TimeSlots[i].Label, o.Label)
				}
				if o.Disabled != tt.want[i] {
					t.Errorf("slot %s: expected disabled=%v", o.Label, tt.want[i])
				}
			}
		})
	}
}

func TestSlotAvailability_OtherZone(t *testing.T) {
	// 02:00 UTC is 09:00 in Vietnam, so only the first slot has started.
	now := time.Date(2026, 10, 18, 2, 0, 0, 0, time.UTC)
	got := SlotAvailability(time.Date(2026, 10, 18, 0, 0, 0, 0, testLoc), now)
	if !got[0].Disabled || got[1].Disabled {
		t.Errorf("unexpected availability %+v", got)
	}
}

func TestAllSlotsPast(t *testing.T) {
	today := time.Date(2026, 10, 18, 0, 0, 0, 0, testLoc)
	if AllSlotsPast(today, testNow) {
		t.Error("expected later slots to be open")
	}
	if !AllSlotsPast(today, time.Date(2026, 10, 18, 15, 45, 0, 0, testLoc)) {
		t.Error("expected every slot to have started")
	}
}

func TestLookupSlot(t *testing.T) {
	s, ok := LookupSlot("14:30-15:30")
	if !ok || s.StartHour != 14 || s.StartMinute != 30 {
		t.Errorf("unexpected slot %+v %v", s, ok)
	}
	if _, ok := LookupSlot("14:30"); ok {
		t.Error("expected unknown slot")
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-02-28", testLoc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Location() != testLoc || d.Day() != 28 {
		t.Errorf("unexpected date %v", d)
	}
	for _, bad := range []string{"", "2026-02-30", "28-02-2026"} {
		if _, err := ParseDate(bad, testLoc); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestAgeOn(t *testing.T) {
	date := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, testLoc) }
	tests := []struct {
		name  string
		birth time.Time
		today time.Time
		want  int
	}{
		{"birthday today", date(2008, 10, 18), date(2026, 10, 18), 18},
		{"day before birthday", date(2008, 10, 19), date(2026, 10, 18), 17},
		{"later month", date(2008, 11, 1), date(2026, 10, 18), 17},
		{"leap day in non-leap year", date(2008, 2, 29), date(2026, 2, 28), 17},
		{"leap day after february", date(2008, 2, 29), date(2026, 3, 1), 18},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AgeOn(tt.birth, tt.today); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestValidateRepresentativeAge(t *testing.T) {
	today := time.Date(2026, 10, 18, 0, 0, 0, 0, testLoc)
	if err := ValidateRepresentativeAge(time.Date(1990, 1, 1, 0, 0, 0, 0, testLoc), today); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateRepresentativeAge(time.Date(2009, 1, 1, 0, 0, 0, 0, testLoc), today); err == nil {
		t.Error("expected error for a 17 year old")
	}
	if err := ValidateRepresentativeAge(time.Date(2027, 1, 1, 0, 0, 0, 0, testLoc), today); err == nil {
		t.Error("expected error for a future birth date")
	}
}
