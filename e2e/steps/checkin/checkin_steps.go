package checkin

import (
	"context"
	"fmt"
	"net/url"

	"github.com/cucumber/godog"
)

// TestContext is the part of the suite context these steps need.
type TestContext interface {
	GET(path string) error
	POST(path string, body any) error
	DELETE(path string, body any) error
	StatusCode() int
	DecodeBody(dst any) error
}

type checkInEvent struct {
	PaperID string `json:"paperId"`
}

type attendee struct {
	Barcode      string         `json:"barcode"`
	Name         string         `json:"name"`
	CheckInCount int            `json:"checkInCount"`
	CheckIns     []checkInEvent `json:"checkIns"`
}

type attendeeResponse struct {
	Attendee attendee `json:"attendee"`
}

// RegisterSteps registers check-in step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &checkinSteps{tc: tc}

	ctx.Step(`^the admission gate is "(on|off)"$`, steps.setGate)
	ctx.Step(`^candidate "([^"]*)" has no check-in for "([^"]*)"$`, steps.ensureNoCheckIn)
	ctx.Step(`^I check in "([^"]*)" for "([^"]*)"(?: again)?$`, steps.checkIn)
	ctx.Step(`^I check in "([^"]*)" for "([^"]*)" with token "([^"]*)"(?: again)?$`, steps.checkInWithToken)
	ctx.Step(`^I remove the check-in of "([^"]*)" for "([^"]*)"$`, steps.remove)

	ctx.Step(`^the attendee should have checked in "([^"]*)"$`, steps.attendeeHasPaper)
	ctx.Step(`^the attendee should have (\d+) events? for "([^"]*)"$`, steps.attendeeEventCount)
	ctx.Step(`^the attendee "(name|barcode)" should be "([^"]*)"$`, steps.attendeeField)
	ctx.Step(`^the attendee check-in count should have grown by (\d+)$`, steps.countGrewBy)
}

type checkinSteps struct {
	tc        TestContext
	barcode   string
	baseCount int
}

func (s *checkinSteps) setGate(_ context.Context, state string) error {
	if err := s.tc.POST("/api/check-ins/status", map[string]bool{"enabled": state == "on"}); err != nil {
		return err
	}
	return s.expectOK()
}

// ensureNoCheckIn removes any leftover event from earlier scenarios and
// remembers the count the scenario starts from.
func (s *checkinSteps) ensureNoCheckIn(_ context.Context, barcode, paperID string) error {
	if err := s.tc.DELETE("/api/check-ins", map[string]string{"barcode": barcode, "paperId": paperID}); err != nil {
		return err
	}
	if s.tc.StatusCode() == 404 {
		return fmt.Errorf("candidate %s missing; load e2e/testdata/roster.csv first (rosterctl load or ROSTER_CSV)", barcode)
	}
	a, err := s.lastAttendee()
	if err != nil {
		return err
	}
	s.barcode = barcode
	s.baseCount = a.CheckInCount
	return nil
}

func (s *checkinSteps) checkIn(_ context.Context, barcode, paperID string) error {
	return s.tc.POST("/api/check-ins", map[string]string{"barcode": barcode, "paperId": paperID})
}

func (s *checkinSteps) checkInWithToken(_ context.Context, barcode, paperID, token string) error {
	return s.tc.POST("/api/check-ins", map[string]string{
		"barcode": barcode, "paperId": paperID, "requestToken": token,
	})
}

func (s *checkinSteps) remove(_ context.Context, barcode, paperID string) error {
	return s.tc.DELETE("/api/check-ins", map[string]string{"barcode": barcode, "paperId": paperID})
}

func (s *checkinSteps) attendeeHasPaper(_ context.Context, paperID string) error {
	return s.attendeeEventCount(context.Background(), 1, paperID)
}

func (s *checkinSteps) attendeeEventCount(_ context.Context, want int, paperID string) error {
	a, err := s.lastAttendee()
	if err != nil {
		return err
	}
	got := 0
	for _, e := range a.CheckIns {
		if e.PaperID == paperID {
			got++
		}
	}
	if got != want {
		return fmt.Errorf("expected %d events for %s, got %d", want, paperID, got)
	}
	return nil
}

func (s *checkinSteps) attendeeField(_ context.Context, field, want string) error {
	a, err := s.lastAttendee()
	if err != nil {
		return err
	}
	got := a.Name
	if field == "barcode" {
		got = a.Barcode
	}
	if got != want {
		return fmt.Errorf("expected attendee %s %q, got %q", field, want, got)
	}
	return nil
}

// countGrewBy re-reads the candidate so it also holds after non-200 steps.
func (s *checkinSteps) countGrewBy(_ context.Context, delta int) error {
	if err := s.tc.GET("/api/candidates/" + url.PathEscape(s.barcode)); err != nil {
		return err
	}
	var a attendee
	if err := s.tc.DecodeBody(&a); err != nil {
		return err
	}
	if got := a.CheckInCount - s.baseCount; got != delta {
		return fmt.Errorf("expected count to grow by %d, grew by %d", delta, got)
	}
	return nil
}

func (s *checkinSteps) lastAttendee() (attendee, error) {
	if err := s.expectOK(); err != nil {
		return attendee{}, err
	}
	var resp attendeeResponse
	if err := s.tc.DecodeBody(&resp); err != nil {
		return attendee{}, err
	}
	return resp.Attendee, nil
}

func (s *checkinSteps) expectOK() error {
	if code := s.tc.StatusCode(); code != 200 {
		return fmt.Errorf("expected status 200, got %d", code)
	}
	return nil
}
