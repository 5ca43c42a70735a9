package records

import (
	"fmt"
	"time"
)

// Record is one person from the birthday dataset.
type Record struct {
	Name        string
	PhoneNumber string
	Month       time.Month
	Day         int
	// Year is 0 when the dataset omits it. It never takes part in matching.
	Year int

	Interests   string
	ReplyPrompt string

	Line int
}

// Birthday formats the stored date as MM-DD.
func (r Record) Birthday() string {
	return fmt.Sprintf("%02d-%02d", int(r.Month), r.Day)
}

// Matches reports whether r's birthday falls on today's month and day.
func Matches(today time.Time, r Record) bool {
	return today.Month() == r.Month && today.Day() == r.Day
}

// Today returns the civil date of now in loc, at midnight.
func Today(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Find returns the record whose phone number equals number.
func Find(recs []Record, number string) (Record, bool) {
	for _, r := range recs {
		if r.PhoneNumber == number {
			return r, true
		}
	}
	return Record{}, false
}
