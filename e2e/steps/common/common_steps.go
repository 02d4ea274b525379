//go:build e2e

package common

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	AuthenticateAs(actor string)
	Do(method, path string, body any) error
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetResponseField(field string) (any, error)
	Remember(name, value string)
	Expand(s string) string
	EventTypes() []string
}

// RegisterSteps registers generic request and assertion steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^I am authenticated as "([^"]*)"$`, steps.authenticateAs)
	ctx.Step(`^I am not authenticated$`, steps.anonymous)
	ctx.Step(`^I send a (GET|POST|DELETE) request to "([^"]*)"$`, steps.send)
	ctx.Step(`^I POST to "([^"]*)" with body:$`, steps.postWithBody)

	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, steps.fieldShouldEqual)
	ctx.Step(`^the response field "([^"]*)" should be (true|false)$`, steps.fieldShouldBeBool)
	ctx.Step(`^the response field "([^"]*)" should be (\d+)$`, steps.fieldShouldBeNumber)
	ctx.Step(`^the error code should be "([^"]*)"$`, steps.errorCodeShouldBe)
	ctx.Step(`^I remember the response field "([^"]*)" as "([^"]*)"$`, steps.remember)
	ctx.Step(`^the events "([^"]*)" should have been emitted in order$`, steps.eventsEmitted)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) authenticateAs(_ context.Context, actor string) error {
	s.tc.AuthenticateAs(actor)
	return nil
}

func (s *commonSteps) anonymous(context.Context) error {
	s.tc.AuthenticateAs("")
	return nil
}

func (s *commonSteps) send(_ context.Context, method, path string) error {
	return s.tc.Do(method, path, nil)
}

func (s *commonSteps) postWithBody(_ context.Context, path string, body *godog.DocString) error {
	return s.tc.Do("POST", path, rawJSON(s.tc.Expand(body.Content)))
}

func (s *commonSteps) statusShouldBe(_ context.Context, want int) error {
	if got := s.tc.GetLastResponseStatus(); got != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) fieldShouldEqual(_ context.Context, field, want string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if got := Stringify(v); got != s.tc.Expand(want) {
		return fmt.Errorf("field %q: expected %q, got %q", field, want, got)
	}
	return nil
}

func (s *commonSteps) fieldShouldBeBool(_ context.Context, field, want string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	b, ok := v.(bool)
	if !ok || strconv.FormatBool(b) != want {
		return fmt.Errorf("field %q: expected %s, got %v", field, want, v)
	}
	return nil
}

func (s *commonSteps) fieldShouldBeNumber(_ context.Context, field string, want int) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	n, ok := v.(float64)
	if !ok || int(n) != want {
		return fmt.Errorf("field %q: expected %d, got %v", field, want, v)
	}
	return nil
}

func (s *commonSteps) errorCodeShouldBe(ctx context.Context, code string) error {
	return s.fieldShouldEqual(ctx, "error", code)
}

func (s *commonSteps) remember(_ context.Context, field, name string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	s.tc.Remember(name, Stringify(v))
	return nil
}

func (s *commonSteps) eventsEmitted(_ context.Context, list string) error {
	want := strings.Split(list, ",")
	got := s.tc.EventTypes()
	i := 0
	for _, t := range got {
		if i < len(want) && t == strings.TrimSpace(want[i]) {
			i++
		}
	}
	if i != len(want) {
		return fmt.Errorf("expected events %v in order, got %v", want, got)
	}
	return nil
}

// Stringify renders a decoded JSON scalar the way it appears in a feature file.
func Stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

type rawJSON string

func (r rawJSON) MarshalJSON() ([]byte, error) {
	return []byte(r), nil
}
