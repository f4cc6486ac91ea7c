package e2e

import (
	"github.com/cucumber/godog"

	"fhiraudit/e2e/steps/common"
	"fhiraudit/e2e/steps/workflow"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Generic requests and status assertions
	common.RegisterSteps(ctx, tc)

	// Radiology workflow and event log export
	workflow.RegisterSteps(ctx, tc)
}
