package models

import (
	"slices"
	"time"
)

// TimePrecision is the finest timestamp resolution the stores keep
// (Postgres TIMESTAMPTZ).
const TimePrecision = time.Microsecond

// RecordCheckIn applies one accepted check-in for paperID at the given time.
//
// Re-checking a paper already on the ledger moves its At forward in place (the
// title is first-write-wins) instead of appending a second event. Every accepted
// call increments CheckInCount, including repeats of the same paper: each
// physical scan is a countable event.
//
// at is truncated to TimePrecision so LastCheckIn and the event agree after a
// store round trip.
func (c *Candidate) RecordCheckIn(paperID, title string, at time.Time) {
	at = at.Truncate(TimePrecision)
	if i := c.indexOf(paperID); i >= 0 {
		c.CheckIns[i].At = at
		if c.CheckIns[i].Title == "" {
			c.CheckIns[i].Title = title
		}
	} else {
		c.CheckIns = append(c.CheckIns, CheckInEvent{PaperID: paperID, Title: title, At: at})
	}
	c.CheckInCount++
	c.recomputeLastCheckIn()
}

// RemoveCheckIn retracts the event for paperID. Removing a paper that was never
// checked in is a successful no-op and reports false.
func (c *Candidate) RemoveCheckIn(paperID string) bool {
	i := c.indexOf(paperID)
	if i < 0 {
		return false
	}
	c.CheckIns = slices.Delete(c.CheckIns, i, i+1)
	c.CheckInCount = max(c.CheckInCount-1, 0)
	c.recomputeLastCheckIn()
	return true
}

// HasCheckIn reports whether paperID is on the ledger.
func (c *Candidate) HasCheckIn(paperID string) bool {
	return c.indexOf(paperID) >= 0
}

func (c *Candidate) indexOf(paperID string) int {
	return slices.IndexFunc(c.CheckIns, func(e CheckInEvent) bool {
		return e.PaperID == paperID
	})
}

func (c *Candidate) recomputeLastCheckIn() {
	var latest *time.Time
	for i := range c.CheckIns {
		at := c.CheckIns[i].At
		if at.IsZero() {
			continue
		}
		if latest == nil || at.After(*latest) {
			t := at
			latest = &t
		}
	}
	c.LastCheckIn = latest
}
