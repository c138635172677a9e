package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Candidate is one exam registrant: the raw roster row plus the check-in ledger
// this service maintains for it.
//
// Invariants (maintained by the ledger methods in ledger.go):
//   - at most one CheckInEvent per PaperID
//   - CheckInCount never goes below zero
//   - LastCheckIn is the latest At across CheckIns, nil when CheckIns is empty
//
// Version is the optimistic-concurrency token; stores bump it on every update.
type Candidate struct {
	ID           uuid.UUID
	Fields       Record
	LastCheckIn  *time.Time
	CheckInCount int
	CheckIns     []CheckInEvent
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CheckInEvent is one candidate's attendance for one paper.
type CheckInEvent struct {
	PaperID string    `json:"paperId"`
	Title   string    `json:"title"`
	At      time.Time `json:"at"`
}

// Canonical resolves the candidate's raw fields.
func (c *Candidate) Canonical() CanonicalView {
	return Resolve(c.Fields)
}

// Clone returns a deep copy safe to mutate independently of the original.
func (c *Candidate) Clone() *Candidate {
	if c == nil {
		return nil
	}
	out := *c
	out.Fields = c.Fields.Clone()
	out.CheckIns = slices.Clone(c.CheckIns)
	if c.LastCheckIn != nil {
		t := *c.LastCheckIn
		out.LastCheckIn = &t
	}
	return &out
}

// CandidateView is the read shape returned to callers. Field names follow the
// JSON the scanner client already consumes.
type CandidateView struct {
	ID            uuid.UUID            `json:"_id"`
	Barcode       string               `json:"barcode"`
	Name          string               `json:"name"`
	PhoneNumber   string               `json:"phoneNumber"`
	Timeslot      string               `json:"timeslot"`
	School        string               `json:"school"`
	LastCheckIn   *time.Time           `json:"lastCheckIn"`
	CheckInCount  int                  `json:"checkInCount"`
	CheckIns      []CheckInEvent       `json:"checkIns"`
	CheckedPapers map[string]time.Time `json:"checkedPapers"`
}

// View builds the canonical read view.
func (c *Candidate) View() CandidateView {
	canon := c.Canonical()
	checkIns := slices.Clone(c.CheckIns)
	if checkIns == nil {
		checkIns = []CheckInEvent{}
	}
	var last *time.Time
	if c.LastCheckIn != nil {
		t := *c.LastCheckIn
		last = &t
	}
	return CandidateView{
		ID:            c.ID,
		Barcode:       canon.Barcode,
		Name:          canon.CandidateName,
		PhoneNumber:   canon.PhoneNumber,
		Timeslot:      canon.Timeslot,
		School:        canon.School,
		LastCheckIn:   last,
		CheckInCount:  c.CheckInCount,
		CheckIns:      checkIns,
		CheckedPapers: c.CheckedPapers(),
	}
}

// CheckedPapers maps paper id to its check-in time.
func (c *Candidate) CheckedPapers() map[string]time.Time {
	out := make(map[string]time.Time, len(c.CheckIns))
	for _, e := range c.CheckIns {
		if e.PaperID != "" {
			out[e.PaperID] = e.At
		}
	}
	return out
}
