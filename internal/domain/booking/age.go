package booking

import (
	"fmt"
	"time"
)

// AdultAge is the minimum age of the representative and of any participant
// who is not the tested child.
const AdultAge = 18

// AgeOn returns the number of whole years between birth and today. A person
// born on 29 February turns a year older on 1 March in non-leap years.
func AgeOn(birth, today time.Time) int {
	years := today.Year() - birth.Year()
	if today.Month() < birth.Month() ||
		(today.Month() == birth.Month() && today.Day() < birth.Day()) {
		years--
	}
	return years
}

// ValidateRepresentativeAge checks that the representative is an adult on
// today.
func ValidateRepresentativeAge(birth, today time.Time) error {
	if birth.After(today) {
		return fmt.Errorf("date of birth cannot be in the future")
	}
	if AgeOn(birth, today) < AdultAge {
		return fmt.Errorf("representative must be at least %d years old", AdultAge)
	}
	return nil
}
