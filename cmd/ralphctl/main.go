// Command ralphctl is the onboarding companion for ralphbot: key
// validation, GitHub access checks, git repository setup, and MCP
// client configuration: glue over subprocess calls and third-party
// APIs, narrated in Ralph's voice.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:     "ralphctl",
		Short:   "Setup and diagnostics for the ralphbot backend",
		Long:    "ralphctl walks you through the setup ralphbot needs: API keys, GitHub access, git config, and MCP client wiring. Ralph narrates.",
		Version: version,
	}

	root.AddCommand(newKeysCmd())
	root.AddCommand(newGitHubCmd())
	root.AddCommand(newGitCmd())
	root.AddCommand(newMCPCmd())
	root.AddCommand(newSecretCmd())

	if err := root.Execute(); err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "Error:", ee.msg)
			os.Exit(ee.code)
		}
		// cobra already printed the error
		os.Exit(1)
	}
}

// say prints one narrated line. Narration is the product surface of
// this CLI, so it goes to stdout.
func say(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}
