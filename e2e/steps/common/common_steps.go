package common

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(method, path, body string) error
	LastStatus() int
	LastBodyString() string
}

// RegisterSteps registers request and response step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^the server is healthy$`, steps.serverIsHealthy)
	ctx.Step(`^I send "(GET|POST|PUT|DELETE)" to "([^"]*)"$`, steps.send)
	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the response should contain "([^"]*)"$`, steps.bodyShouldContain)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) serverIsHealthy(ctx context.Context) error {
	if err := s.tc.Do("GET", "/health", ""); err != nil {
		return err
	}
	return s.statusShouldBe(ctx, 200)
}

func (s *commonSteps) send(_ context.Context, method, path string) error {
	return s.tc.Do(method, path, "")
}

func (s *commonSteps) statusShouldBe(_ context.Context, want int) error {
	if got := s.tc.LastStatus(); got != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, got, s.tc.LastBodyString())
	}
	return nil
}

func (s *commonSteps) bodyShouldContain(_ context.Context, text string) error {
	if !strings.Contains(s.tc.LastBodyString(), text) {
		return fmt.Errorf("response does not contain %q: %s", text, s.tc.LastBodyString())
	}
	return nil
}
