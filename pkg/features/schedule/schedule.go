// Package schedule turns "run at a fixed local wall-clock time" into fixed-UTC
// cron rules, one per group of months sharing a UTC offset.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Table holds the UTC offset of the target zone for each month, in minutes.
// Index 0 is January.
type Table [12]int

// DefaultTable keeps the daily run near local time in Finland: UTC+2 from
// November to March, UTC+3 from April to October.
var DefaultTable = Table{120, 120, 120, 180, 180, 180, 180, 180, 180, 180, 120, 120}

// TableFor samples loc's offset in the middle of every month of year. Days
// between a DST switch and the month's midpoint run an hour off.
func TableFor(loc *time.Location, year int) Table {
	var t Table
	for m := time.January; m <= time.December; m++ {
		_, offset := time.Date(year, m, 15, 12, 0, 0, 0, loc).Zone()
		t[m-1] = offset / 60
	}
	return t
}

func (t Table) Offset(m time.Month) int {
	return t[m-1]
}

// Rule is one fixed-UTC daily trigger.
type Rule struct {
	Name      string
	Months    []time.Month
	UTCHour   int
	UTCMinute int
}

// Expression renders r as an EventBridge cron expression.
func (r Rule) Expression() string {
	months := make([]string, len(r.Months))
	for i, m := range r.Months {
		months[i] = strconv.Itoa(int(m))
	}
	return fmt.Sprintf("cron(%d %d ? %s * *)", r.UTCMinute, r.UTCHour, strings.Join(months, ","))
}

func (r Rule) Covers(m time.Month) bool {
	for _, rm := range r.Months {
		if rm == m {
			return true
		}
	}
	return false
}

// Rules groups months by offset so that every month is covered by exactly
// one rule firing at hour:minute local time. Rules are ordered by their first month.
func (t Table) Rules(hour, minute int) []Rule {
	var rules []Rule
	byOffset := map[int]int{}

	for m := time.January; m <= time.December; m++ {
		offset := t.Offset(m)
		i, ok := byOffset[offset]
		if !ok {
			utc := ((hour*60+minute-offset)%1440 + 1440) % 1440
			rules = append(rules, Rule{
				Name:      offsetName(offset),
				UTCHour:   utc / 60,
				UTCMinute: utc % 60,
			})
			i = len(rules) - 1
			byOffset[offset] = i
		}
		rules[i].Months = append(rules[i].Months, m)
	}
	return rules
}

// ActiveRule returns the rule that fires on date.
func (t Table) ActiveRule(date time.Time, hour, minute int) Rule {
	for _, r := range t.Rules(hour, minute) {
		if r.Covers(date.Month()) {
			return r
		}
	}
	panic("schedule: month not covered")
}

func offsetName(minutes int) string {
	sign := "+"
	if minutes < 0 {
		sign = "-"
		minutes = -minutes
	}
	return fmt.Sprintf("UTC%s%02d%02d", sign, minutes/60, minutes%60)
}
