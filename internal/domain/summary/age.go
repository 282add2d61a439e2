package summary

import (
	"fmt"
	"time"
)

// Age is a whole-year / whole-month age. Day of month is not considered.
type Age struct {
	Years       int `json:"years"`
	Months      int `json:"months"`
	TotalMonths int `json:"totalMonths"`
}

// Display renders "4y 3m", or "7m" for ages under one year.
func (a Age) Display() string {
	if a.Years > 0 {
		return fmt.Sprintf("%dy %dm", a.Years, a.Months)
	}
	return fmt.Sprintf("%dm", a.Months)
}

// CalculateAge takes the calendar year difference and month difference
// between birth and ref, borrowing a year when the month difference is
// negative.
func CalculateAge(birth, ref time.Time) Age {
	birth = birth.UTC()
	ref = ref.UTC()

	years := ref.Year() - birth.Year()
	months := int(ref.Month()) - int(birth.Month())
	if months < 0 {
		years--
		months += 12
	}
	return Age{
		Years:       years,
		Months:      months,
		TotalMonths: years*12 + months,
	}
}

// CalculateAgeAtDate returns the age in total months at event.
func CalculateAgeAtDate(birth, event time.Time) int {
	return CalculateAge(birth, event).TotalMonths
}
