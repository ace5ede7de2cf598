package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRunner answers git invocations from a canned table keyed by
// the joined argument list.
type scriptedRunner struct {
	responses map[string]string
	errs      map[string]error
	calls     []string
}

func (r *scriptedRunner) Run(name string, args ...string) ([]byte, error) {
	key := name + " " + strings.Join(args, " ")
	r.calls = append(r.calls, key)
	if err, ok := r.errs[key]; ok {
		return nil, err
	}
	return []byte(r.responses[key]), nil
}

func TestGitSetupOutsideRepo(t *testing.T) {
	run := &scriptedRunner{
		errs: map[string]error{"git rev-parse --is-inside-work-tree": errors.New("exit 128")},
	}

	err := runGitSetup(run, "", "", "main")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a git repository")
}

func TestGitSetupConfiguresMissingIdentity(t *testing.T) {
	run := &scriptedRunner{
		responses: map[string]string{
			"git rev-parse --is-inside-work-tree": "true\n",
			"git config --get user.name":          "",
			"git config --get user.email":         "",
			"git symbolic-ref --short HEAD":       "main\n",
		},
	}

	err := runGitSetup(run, "Casey", "casey@example.com", "main")
	require.NoError(t, err)
	assert.Contains(t, run.calls, "git config user.name Casey")
	assert.Contains(t, run.calls, "git config user.email casey@example.com")
}

func TestGitSetupKeepsExistingIdentity(t *testing.T) {
	run := &scriptedRunner{
		responses: map[string]string{
			"git rev-parse --is-inside-work-tree": "true\n",
			"git config --get user.name":          "Existing Name\n",
			"git config --get user.email":         "existing@example.com\n",
			"git symbolic-ref --short HEAD":       "feature/x\n",
		},
	}

	err := runGitSetup(run, "Other", "other@example.com", "main")
	require.NoError(t, err)
	for _, call := range run.calls {
		assert.NotContains(t, call, "git config user.name Other", "existing identity is never overwritten")
	}
}

func TestGitSetupMissingIdentityWithoutFlags(t *testing.T) {
	run := &scriptedRunner{
		responses: map[string]string{
			"git rev-parse --is-inside-work-tree": "true\n",
			"git config --get user.name":          "",
		},
	}

	err := runGitSetup(run, "", "", "main")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user.name is not set")
}
