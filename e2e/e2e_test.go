package e2e

import (
	"os"
	"testing"

	"github.com/cucumber/godog"
)

// TestFeatures runs the Gherkin suite against a live server. Set
// CHECKIN_E2E_URL (for example http://localhost:4000) after loading
// testdata/roster.csv with rosterctl, or start the server with
// ROSTER_CSV=e2e/testdata/roster.csv.
func TestFeatures(t *testing.T) {
	baseURL := os.Getenv("CHECKIN_E2E_URL")
	if baseURL == "" {
		t.Skip("CHECKIN_E2E_URL not set")
	}
	tc := NewTestContext(baseURL)

	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			RegisterSteps(ctx, tc)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("feature suite failed")
	}
}
