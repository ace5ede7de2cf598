package feedback

import (
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the scenario context these steps need.
type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	Status() int
	Field(path string) (any, error)
	SaveVar(key, value string)
	Var(key string) string
	NewUUID() string
}

// RegisterSteps registers the feedback queue steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &feedbackSteps{tc: tc}

	ctx.Step(`^I submit a "([^"]*)" report saying "(.+)"$`, steps.submitReport)
	ctx.Step(`^I move it to "([^"]*)"$`, steps.moveTo)
	ctx.Step(`^I fetch it$`, steps.fetchIt)
	ctx.Step(`^I fetch the queue counts$`, steps.fetchQueueCounts)
	ctx.Step(`^the queue should count at least (\d+) "([^"]*)" entries$`, steps.queueShouldCountAtLeast)
}

type feedbackSteps struct {
	tc TestContext
}

const lastFeedbackID = "last_feedback_id"

func (s *feedbackSteps) submitReport(kind, text string) error {
	err := s.tc.POST("/admin/feedback", map[string]any{
		"author_id": s.tc.NewUUID(),
		"chat_id":   9001,
		"kind":      kind,
		"severity":  "medium",
		"text":      text,
	})
	if err != nil {
		return err
	}
	if s.tc.Status() != 201 {
		// Leave the response in place so assertion steps can inspect it.
		return nil
	}
	id, err := s.tc.Field("id")
	if err != nil {
		return err
	}
	s.tc.SaveVar(lastFeedbackID, fmt.Sprint(id))
	return nil
}

func (s *feedbackSteps) moveTo(status string) error {
	id := s.tc.Var(lastFeedbackID)
	if id == "" {
		return fmt.Errorf("no feedback entry submitted in this scenario")
	}
	return s.tc.POST("/admin/feedback/"+id+"/transition", map[string]any{
		"to":     status,
		"reason": "e2e scenario",
	})
}

func (s *feedbackSteps) fetchIt() error {
	id := s.tc.Var(lastFeedbackID)
	if id == "" {
		return fmt.Errorf("no feedback entry submitted in this scenario")
	}
	return s.tc.GET("/admin/feedback/" + id)
}

func (s *feedbackSteps) fetchQueueCounts() error {
	return s.tc.GET("/admin/queue")
}

func (s *feedbackSteps) queueShouldCountAtLeast(min int, status string) error {
	value, err := s.tc.Field("counts." + status)
	if err != nil {
		return err
	}
	count, ok := value.(float64)
	if !ok {
		return fmt.Errorf("count for %q is not a number: %v", status, value)
	}
	if int(count) < min {
		return fmt.Errorf("expected at least %d %q entries, got %d", min, status, int(count))
	}
	return nil
}
