package auth

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
	Credentials() (operator, secret string)
	SetToken(token string)
	Token() string
}

// RegisterSteps registers the operator token steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &authSteps{tc: tc}

	ctx.Step(`^I am authenticated as an operator$`, steps.authenticateAsOperator)
	ctx.Step(`^I request a token with the wrong secret$`, steps.requestTokenWithWrongSecret)
	ctx.Step(`^I log out$`, steps.logOut)
	ctx.Step(`^my token no longer works$`, steps.tokenNoLongerWorks)
}

type authSteps struct {
	tc TestContext
}

func (s *authSteps) authenticateAsOperator() error {
	operator, secret := s.tc.Credentials()
	err := s.tc.POST("/auth/token", map[string]any{
		"operator": operator,
		"secret":   secret,
		"role":     "admin",
	})
	if err != nil {
		return err
	}
	if s.tc.Status() != 200 {
		return fmt.Errorf("token exchange returned %d", s.tc.Status())
	}
	token, err := s.tc.Field("token")
	if err != nil {
		return err
	}
	s.tc.SetToken(fmt.Sprint(token))
	return nil
}

func (s *authSteps) requestTokenWithWrongSecret() error {
	operator, _ := s.tc.Credentials()
	return s.tc.POST("/auth/token", map[string]any{
		"operator": operator,
		"secret":   "definitely-not-the-secret",
		"role":     "admin",
	})
}

func (s *authSteps) logOut() error {
	return s.tc.POST("/auth/logout", nil)
}

func (s *authSteps) tokenNoLongerWorks() error {
	if err := s.tc.GET("/admin/queue"); err != nil {
		return err
	}
	if s.tc.Status() != 401 {
		return fmt.Errorf("expected 401 with a revoked token, got %d", s.tc.Status())
	}
	return nil
}
