//go:build e2e

package e2e

import (
	"github.com/cucumber/godog"

	"tracecore/e2e/steps/common"
	"tracecore/e2e/steps/compliance"
	"tracecore/e2e/steps/registry"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	registry.RegisterSteps(ctx, tc)
	compliance.RegisterSteps(ctx, tc)
}
