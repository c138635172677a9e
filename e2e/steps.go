package e2e

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"checkin/e2e/steps/checkin"
)

// RegisterSteps registers the shared assertions and every domain's steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		tc.Reset()
		return ctx, nil
	})

	ctx.Step(`^the response status should be (\d+)$`, func(status int) error {
		if got := tc.StatusCode(); got != status {
			return fmt.Errorf("expected status %d, got %d: %s", status, got, string(tc.LastBody))
		}
		return nil
	})
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, func(field, want string) error {
		got, err := tc.GetResponseField(field)
		if err != nil {
			return err
		}
		if fmt.Sprint(got) != want {
			return fmt.Errorf("expected %s=%q, got %v", field, want, got)
		}
		return nil
	})

	checkin.RegisterSteps(ctx, tc)
}
