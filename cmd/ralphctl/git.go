package main

import (
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
)

// gitRunner abstracts subprocess execution so tests can script the
// responses instead of shelling out.
type gitRunner interface {
	Run(name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

func newGitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "git",
		Short: "Prepare a git repository for ralphbot development",
	}

	var name, email, branch string
	setup := &cobra.Command{
		Use:   "setup",
		Short: "Check the repo and fill in missing git config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGitSetup(execRunner{}, name, email, branch)
		},
	}
	setup.Flags().StringVar(&name, "name", "", "user.name to set when missing")
	setup.Flags().StringVar(&email, "email", "", "user.email to set when missing")
	setup.Flags().StringVar(&branch, "default-branch", "main", "Branch ralphbot expects to work on")

	cmd.AddCommand(setup)
	return cmd
}

func runGitSetup(run gitRunner, name, email, branch string) error {
	say("me setting up git. git is the thing that remembers the code.")

	out, err := run.Run("git", "rev-parse", "--is-inside-work-tree")
	if err != nil || strings.TrimSpace(string(out)) != "true" {
		return codeError(1, "this is not a git repository. run git init first")
	}
	say("  yes, this is a repository. me knew it.")

	if err := ensureConfig(run, "user.name", name); err != nil {
		return err
	}
	if err := ensureConfig(run, "user.email", email); err != nil {
		return err
	}

	out, err = run.Run("git", "symbolic-ref", "--short", "HEAD")
	if err != nil {
		return codeError(1, "could not read the current branch: %v", err)
	}
	current := strings.TrimSpace(string(out))
	if current == branch {
		say("  you are on %s already. that's where the work lives.", branch)
	} else {
		say("  you are on %s but ralphbot work happens on %s. switch with: git checkout %s", current, branch, branch)
	}

	say("git is all set up. me did a setup!")
	return nil
}

// ensureConfig reads one git config key and sets it from value when
// both the config and the flag are present to reconcile.
func ensureConfig(run gitRunner, key, value string) error {
	out, _ := run.Run("git", "config", "--get", key)
	existing := strings.TrimSpace(string(out))
	if existing != "" {
		say("  %s is %q. good name!", key, existing)
		return nil
	}
	if value == "" {
		return codeError(1, "%s is not set; pass --%s to let me set it", key, strings.TrimPrefix(key, "user."))
	}
	if _, err := run.Run("git", "config", key, value); err != nil {
		return codeError(1, "setting %s failed: %v", key, err)
	}
	say("  %s was empty so me wrote %q in it.", key, value)
	return nil
}
