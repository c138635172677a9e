package models

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var (
	timeslotDatePattern = regexp.MustCompile(`(\d{1,2})\s*/\s*(\d{1,2})\s*/\s*(\d{4})`)
	timeslotTimePattern = regexp.MustCompile(`(\d{1,2}:\d{2}\s*(?:am|pm|AM|PM))`)
)

// SlotDate is a calendar date embedded in a free-text timeslot.
type SlotDate struct {
	Day   int
	Month time.Month
	Year  int
}

// Label renders the date as dd/mm/yyyy.
func (d SlotDate) Label() string {
	return fmt.Sprintf("%02d/%02d/%04d", d.Day, int(d.Month), d.Year)
}

// Time returns local midnight of the date.
func (d SlotDate) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.Local)
}

// After reports whether d falls strictly after other.
func (d SlotDate) After(other SlotDate) bool {
	if d.Year != other.Year {
		return d.Year > other.Year
	}
	if d.Month != other.Month {
		return d.Month > other.Month
	}
	return d.Day > other.Day
}

// ParseSlotDate extracts the first dd/mm/yyyy date from a timeslot such as
// "15/02/2026 08:30am–11:00am". Day and month outside the calendar range are
// rejected rather than rolled over.
func ParseSlotDate(timeslot string) (SlotDate, bool) {
	m := timeslotDatePattern.FindStringSubmatch(timeslot)
	if m == nil {
		return SlotDate{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return SlotDate{}, false
	}
	return SlotDate{Day: day, Month: time.Month(month), Year: year}, true
}

// MustParseSlotDate is ParseSlotDate for configuration constants.
func MustParseSlotDate(label string) SlotDate {
	d, ok := ParseSlotDate(label)
	if !ok {
		panic(fmt.Sprintf("invalid slot date %q", label))
	}
	return d
}

// Paper is one sitting a candidate can check into.
type Paper struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Time  string `json:"time"`
}

// DefaultPapers is the paper catalog for the current examination.
var DefaultPapers = []Paper{
	{ID: "paper1", Title: "Chemistry Paper 1"},
	{ID: "paper2", Title: "Chemistry Paper 2"},
}

var defaultPaperTimes = []string{"08:30 AM", "11:00 AM"}

// PaperSchedule derives the display schedule of DefaultPapers from a timeslot.
// The n-th time found in the timeslot belongs to the n-th paper.
func PaperSchedule(timeslot string) []Paper {
	dateDisplay := "Date TBD"
	if d, ok := ParseSlotDate(timeslot); ok {
		dateDisplay = d.Time().Format("02 Jan 2006")
	}
	times := timeslotTimePattern.FindAllString(timeslot, -1)
	out := make([]Paper, len(DefaultPapers))
	for i, p := range DefaultPapers {
		t := ""
		if i < len(times) {
			t = times[i]
		} else if i < len(defaultPaperTimes) {
			t = defaultPaperTimes[i]
		}
		out[i] = Paper{ID: p.ID, Title: p.Title, Time: dateDisplay + " · " + t}
	}
	return out
}

// PaperTitle returns the catalog title for id, or "" if unknown.
func PaperTitle(id string) string {
	for _, p := range DefaultPapers {
		if p.ID == id {
			return p.Title
		}
	}
	return ""
}
