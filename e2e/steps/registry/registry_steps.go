//go:build e2e

package registry

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"tracecore/e2e/steps/common"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(method, path string, body any) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	Remember(name, value string)
	Recall(name string) (string, bool)
}

// RegisterSteps registers entity and checkpoint step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &registrySteps{tc: tc}

	ctx.Step(`^I register "([^"]*)" of type "([^"]*)" with batch key "([^"]*)" as "([^"]*)"$`, steps.registerAs)
	ctx.Step(`^I add a checkpoint "([^"]*)" at "([^"]*)" to "([^"]*)"$`, steps.addCheckpoint)
	ctx.Step(`^I grant "([^"]*)" access to "([^"]*)"$`, steps.grantActor)
	ctx.Step(`^I deactivate "([^"]*)"$`, steps.deactivate)
	ctx.Step(`^"([^"]*)" should have (\d+) checkpoints?$`, steps.shouldHaveCheckpoints)
	ctx.Step(`^"([^"]*)" should be authorized for exactly "([^"]*)"$`, steps.authorizedExactly)
}

type registrySteps struct {
	tc TestContext
}

func (s *registrySteps) entityID(name string) (string, error) {
	v, ok := s.tc.Recall(name)
	if !ok {
		return "", fmt.Errorf("no entity remembered as %q", name)
	}
	return v, nil
}

func (s *registrySteps) registerAs(_ context.Context, name, entityType, batchKey, alias string) error {
	err := s.tc.Do("POST", "/entities", map[string]any{
		"name":        name,
		"type":        entityType,
		"batch_key":   batchKey,
		"valid_from":  "2026-01-01T00:00:00Z",
		"valid_until": "2027-01-01T00:00:00Z",
	})
	if err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 201 {
		return nil
	}
	v, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.tc.Remember(alias, common.Stringify(v))
	return nil
}

func (s *registrySteps) addCheckpoint(_ context.Context, status, location, alias string) error {
	entityID, err := s.entityID(alias)
	if err != nil {
		return err
	}
	return s.tc.Do("POST", "/entities/"+entityID+"/checkpoints", map[string]any{
		"status":   status,
		"location": location,
	})
}

func (s *registrySteps) grantActor(_ context.Context, actor, alias string) error {
	entityID, err := s.entityID(alias)
	if err != nil {
		return err
	}
	return s.tc.Do("POST", "/entities/"+entityID+"/actors", map[string]any{"actor": actor})
}

func (s *registrySteps) deactivate(_ context.Context, alias string) error {
	entityID, err := s.entityID(alias)
	if err != nil {
		return err
	}
	return s.tc.Do("POST", "/entities/"+entityID+"/deactivate", nil)
}

func (s *registrySteps) shouldHaveCheckpoints(_ context.Context, alias string, want int) error {
	entityID, err := s.entityID(alias)
	if err != nil {
		return err
	}
	if err := s.tc.Do("GET", "/entities/"+entityID+"/checkpoints", nil); err != nil {
		return err
	}
	count, err := s.tc.GetResponseField("count")
	if err != nil {
		return err
	}
	if n, _ := count.(float64); int(n) != want {
		return fmt.Errorf("expected %d checkpoints, got %v", want, count)
	}
	return nil
}

func (s *registrySteps) authorizedExactly(_ context.Context, alias, actor string) error {
	entityID, err := s.entityID(alias)
	if err != nil {
		return err
	}
	if err := s.tc.Do("GET", "/entities/"+entityID+"/actors", nil); err != nil {
		return err
	}
	count, err := s.tc.GetResponseField("count")
	if err != nil {
		return err
	}
	first, err := s.tc.GetResponseField("items.0.actor")
	if err != nil {
		return err
	}
	if n, _ := count.(float64); n != 1 || first != actor {
		return fmt.Errorf("expected only %q to be authorized, got count=%v first=%v", actor, count, first)
	}
	return nil
}
