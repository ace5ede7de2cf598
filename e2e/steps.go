package e2e

import (
	"github.com/cucumber/godog"

	"ralphbot/e2e/steps/auth"
	"ralphbot/e2e/steps/common"
	"ralphbot/e2e/steps/feedback"
)

// RegisterSteps wires all step definitions onto the scenario context.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	auth.RegisterSteps(ctx, tc)
	feedback.RegisterSteps(ctx, tc)
}
