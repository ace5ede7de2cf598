package main

import (
	"context"
	"os"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
	"github.com/spf13/cobra"
)

const githubTimeout = 15 * time.Second

func newGitHubCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "github",
		Short: "Check GitHub access for the feedback exporter",
	}

	var baseURL string
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Look up the authenticated user and probe token scopes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGitHubVerify(cmd.Context(), baseURL)
		},
	}
	verify.Flags().StringVar(&baseURL, "api", "", "Override the GitHub API base URL (tests only)")

	cmd.AddCommand(verify)
	return cmd
}

func runGitHubVerify(ctx context.Context, baseURL string) error {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return codeError(1, "GITHUB_TOKEN is not set")
	}

	say("me asking github who you are...")

	client := gh.NewClient(nil).WithAuthToken(token)
	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return codeError(1, "bad --api URL: %v", err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, githubTimeout)
	defer cancel()

	user, resp, err := client.Users.Get(callCtx, "")
	if err != nil {
		return codeError(1, "github did not like that token: %v", err)
	}

	say("  github says you are %s. hi %s!", user.GetLogin(), user.GetLogin())

	// Classic tokens list scopes in the response header; fine-grained
	// tokens leave it empty.
	scopes := resp.Header.Get("X-OAuth-Scopes")
	if scopes == "" {
		say("  no scope list. probly a fine-grained token. me can't see inside those.")
		return nil
	}
	say("  your token can do: %s", scopes)
	if !hasScope(scopes, "repo") {
		say("  no repo scope. exporting feedback to issues won't work. uh oh.")
		return codeError(1, "token is missing the repo scope")
	}
	say("  repo scope is there. the feedback exporter will be so happy.")
	return nil
}

func hasScope(header, want string) bool {
	for _, s := range strings.Split(header, ",") {
		if strings.TrimSpace(s) == want {
			return true
		}
	}
	return false
}
