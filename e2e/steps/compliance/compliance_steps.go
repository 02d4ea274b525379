//go:build e2e

package compliance

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(method, path string, body any) error
	GetResponseField(field string) (any, error)
	Recall(name string) (string, bool)
}

// RegisterSteps registers rule catalog and compliance check step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &complianceSteps{tc: tc}

	ctx.Step(`^I add rule "([^"]*)" for type "([^"]*)" with severity (\d+)$`, steps.addRule)
	ctx.Step(`^I record a (passing|failing) check of "([^"]*)" with confidence (\d+) on "([^"]*)"$`, steps.recordCheck)
	ctx.Step(`^I recompute compliance for "([^"]*)"$`, steps.recompute)
	ctx.Step(`^"([^"]*)" should be (compliant|non-compliant) with (\d+) passed and (\d+) failed$`, steps.statusShouldBe)
	ctx.Step(`^"([^"]*)" should have (\d+) compliance checks?$`, steps.historyLength)
}

type complianceSteps struct {
	tc TestContext
}

func (s *complianceSteps) entityPath(alias, suffix string) (string, error) {
	v, ok := s.tc.Recall(alias)
	if !ok {
		return "", fmt.Errorf("no entity remembered as %q", alias)
	}
	return "/entities/" + v + "/compliance" + suffix, nil
}

func (s *complianceSteps) addRule(_ context.Context, ruleID, entityType string, severity int) error {
	return s.tc.Do("POST", "/rules", map[string]any{
		"id":          ruleID,
		"name":        ruleID + " requirement",
		"entity_type": entityType,
		"requirement": "documented and verified",
		"severity":    severity,
	})
}

func (s *complianceSteps) recordCheck(_ context.Context, outcome, ruleID string, confidence int, alias string) error {
	path, err := s.entityPath(alias, "/checks")
	if err != nil {
		return err
	}
	return s.tc.Do("POST", path, map[string]any{
		"rule_id":    ruleID,
		"passed":     outcome == "passing",
		"evidence":   "inspection report",
		"confidence": confidence,
	})
}

func (s *complianceSteps) recompute(_ context.Context, alias string) error {
	path, err := s.entityPath(alias, "/recompute")
	if err != nil {
		return err
	}
	return s.tc.Do("POST", path, nil)
}

func (s *complianceSteps) statusShouldBe(_ context.Context, alias, state string, passed, failed int) error {
	path, err := s.entityPath(alias, "")
	if err != nil {
		return err
	}
	if err := s.tc.Do("GET", path, nil); err != nil {
		return err
	}
	compliant, err := s.tc.GetResponseField("compliant")
	if err != nil {
		return err
	}
	gotPassed, _ := s.tc.GetResponseField("passed")
	gotFailed, _ := s.tc.GetResponseField("failed")
	if compliant != (state == "compliant") || gotPassed != float64(passed) || gotFailed != float64(failed) {
		return fmt.Errorf("expected %s with %d passed and %d failed, got compliant=%v passed=%v failed=%v",
			state, passed, failed, compliant, gotPassed, gotFailed)
	}
	return nil
}

func (s *complianceSteps) historyLength(_ context.Context, alias string, want int) error {
	path, err := s.entityPath(alias, "/checks")
	if err != nil {
		return err
	}
	if err := s.tc.Do("GET", path, nil); err != nil {
		return err
	}
	count, err := s.tc.GetResponseField("count")
	if err != nil {
		return err
	}
	if n, _ := count.(float64); int(n) != want {
		return fmt.Errorf("expected %d checks, got %v", want, count)
	}
	return nil
}
