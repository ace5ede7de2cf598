package main

import (
	"github.com/spf13/cobra"

	"ralphbot/internal/secrets"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Generate the secrets the server reads from the environment",
	}

	bootstrap := &cobra.Command{
		Use:   "bootstrap",
		Short: "Mint an operator bootstrap secret and its bcrypt hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSecretBootstrap()
		},
	}

	webhook := &cobra.Command{
		Use:   "webhook",
		Short: "Mint a webhook secret for TELEGRAM_WEBHOOK_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSecretWebhook()
		},
	}

	cmd.AddCommand(bootstrap)
	cmd.AddCommand(webhook)
	return cmd
}

func runSecretBootstrap() error {
	secret, err := secrets.Generate()
	if err != nil {
		return codeError(1, "could not generate a secret: %v", err)
	}
	hash, err := secrets.Hash(secret)
	if err != nil {
		return codeError(1, "could not hash the secret: %v", err)
	}

	say("me made you a secret! keep it somewhere dark.")
	say("")
	say("  secret (give this to operators): %s", secret)
	say("  RALPH_ADMIN_SECRET_HASH=%s", hash)
	say("")
	say("the server only ever sees the hash. that's the portant part.")
	return nil
}

func runSecretWebhook() error {
	secret, err := secrets.Generate()
	if err != nil {
		return codeError(1, "could not generate a secret: %v", err)
	}
	say("one webhook secret, fresh from the random place:")
	say("")
	say("  TELEGRAM_WEBHOOK_SECRET=%s", secret)
	say("")
	say("put the same one in your .env before registering the webhook.")
	return nil
}
