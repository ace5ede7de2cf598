package e2e

import (
	"context"
	"os"
	"testing"

	"github.com/cucumber/godog"
)

func TestFeatures(t *testing.T) {
	baseURL := os.Getenv("RALPH_E2E_BASE_URL")
	if baseURL == "" {
		t.Skip("RALPH_E2E_BASE_URL not set, skipping e2e scenarios")
	}
	secret := os.Getenv("RALPH_E2E_SECRET")
	if secret == "" {
		t.Skip("RALPH_E2E_SECRET not set, skipping e2e scenarios")
	}
	operator := os.Getenv("RALPH_E2E_OPERATOR")
	if operator == "" {
		operator = "e2e"
	}

	tc := NewTestContext(baseURL, operator, secret)

	suite := godog.TestSuite{
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
				tc.Reset()
				return ctx, nil
			})
			RegisterSteps(sc, tc)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("e2e scenarios failed")
	}
}
