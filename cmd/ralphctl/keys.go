package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ralphbot/internal/telegram"
)

const keysTimeout = 10 * time.Second

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Work with the API keys ralphbot needs",
	}

	var baseURL string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check TELEGRAM_BOT_TOKEN against the Bot API and shape-check the LLM keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeysValidate(cmd.Context(), baseURL)
		},
	}
	validate.Flags().StringVar(&baseURL, "telegram-api", "", "Override the Bot API base URL (tests only)")

	cmd.AddCommand(validate)
	return cmd
}

func runKeysValidate(ctx context.Context, baseURL string) error {
	say("hi! me checking your keys now. this is my favorite part.")

	failures := 0

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		say("  telegram: no TELEGRAM_BOT_TOKEN. the bot can't talk without it!")
		failures++
	} else {
		var opts []telegram.ClientOption
		if baseURL != "" {
			opts = append(opts, telegram.WithBaseURL(baseURL))
		}
		client := telegram.NewClient(token, opts...)

		callCtx, cancel := context.WithTimeout(ctx, keysTimeout)
		me, err := client.GetMe(callCtx)
		cancel()
		if err != nil {
			say("  telegram: token did not work (%v). telegram says no.", err)
			failures++
		} else {
			say("  telegram: token works! me talked to @%s. hi @%s!", me.Username, me.Username)
		}
	}

	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	switch {
	case anthropicKey == "":
		say("  anthropic: no ANTHROPIC_API_KEY. that's ok, the template writes the documents then.")
	case !strings.HasPrefix(anthropicKey, "sk-ant-"):
		say("  anthropic: that key doesn't look right. they start with sk-ant-.")
		failures++
	default:
		say("  anthropic: key looks like a key! me can't tell more without spending money.")
	}

	openaiKey := os.Getenv("OPENAI_API_KEY")
	switch {
	case openaiKey == "":
		say("  openai: no OPENAI_API_KEY. also ok!")
	case !strings.HasPrefix(openaiKey, "sk-"):
		say("  openai: that key doesn't start with sk-. me suspicious.")
		failures++
	default:
		say("  openai: key shaped like a key. good job!")
	}

	if failures > 0 {
		return codeError(1, "%d key check(s) failed", failures)
	}
	say("all done! everything me checked is happy. i'm learnding!")
	return nil
}
