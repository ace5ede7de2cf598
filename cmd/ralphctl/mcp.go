package main

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// mcpServerName is the key ralphbot claims inside the client config.
const mcpServerName = "ralph-feedback"

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Wire the feedback queue into an MCP client",
	}

	var opts mcpInstallOptions
	install := &cobra.Command{
		Use:   "install",
		Short: "Add the ralph-feedback stdio server to a Claude-style MCP config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPInstall(opts)
		},
	}
	install.Flags().StringVar(&opts.configPath, "config", "", "MCP client config file (default ~/.claude.json)")
	install.Flags().StringVar(&opts.binary, "binary", "mcp-feedback-server", "Path to the mcp-feedback-server binary")
	install.Flags().StringVar(&opts.apiURL, "api-url", "http://localhost:8080", "ralphbot admin API base URL")
	install.Flags().StringVar(&opts.token, "token", "", "Admin token the MCP server authenticates with")

	cmd.AddCommand(install)
	return cmd
}

type mcpInstallOptions struct {
	configPath string
	binary     string
	apiURL     string
	token      string
}

// mcpServerEntry is the stdio server stanza Claude-style clients read.
type mcpServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

func runMCPInstall(opts mcpInstallOptions) error {
	path := opts.configPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return codeError(1, "cannot find your home directory: %v", err)
		}
		path = filepath.Join(home, ".claude.json")
	}

	say("me teaching your agent about the feedback queue...")

	changed, err := installMCPServer(path, opts)
	if err != nil {
		return err
	}
	if !changed {
		say("  %s already knows about %s. nothing to do. me efficient!", path, mcpServerName)
		return nil
	}
	say("  wrote %s into %s. old file is next to it with .bak on the end.", mcpServerName, path)
	say("your agent can read the queue now. it's learnding too!")
	return nil
}

// installMCPServer merges the ralph-feedback entry into the config at
// path, preserving everything else in the file. Returns false when the
// entry already matched. The prior file is copied to path.bak before
// the rewrite.
func installMCPServer(path string, opts mcpInstallOptions) (bool, error) {
	config := map[string]json.RawMessage{}
	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(existing) > 0 {
			if err := json.Unmarshal(existing, &config); err != nil {
				return false, codeError(1, "%s is not valid JSON: %v", path, err)
			}
		}
	case errors.Is(err, fs.ErrNotExist):
		// A fresh config; the merge below creates it.
	default:
		return false, codeError(1, "reading %s: %v", path, err)
	}

	servers := map[string]json.RawMessage{}
	if raw, ok := config["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &servers); err != nil {
			return false, codeError(1, "mcpServers in %s is not an object: %v", path, err)
		}
	}

	entry := mcpServerEntry{
		Command: opts.binary,
		Env: map[string]string{
			"RALPH_API_URL": opts.apiURL,
		},
	}
	if opts.token != "" {
		entry.Env["RALPH_ADMIN_TOKEN"] = opts.token
	}
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return false, err
	}

	if prior, ok := servers[mcpServerName]; ok && jsonEqual(prior, entryJSON) {
		return false, nil
	}
	servers[mcpServerName] = entryJSON

	serversJSON, err := json.Marshal(servers)
	if err != nil {
		return false, err
	}
	config["mcpServers"] = serversJSON

	out, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return false, err
	}

	if len(existing) > 0 {
		if err := os.WriteFile(path+".bak", existing, 0o600); err != nil {
			return false, codeError(1, "backing up %s: %v", path, err)
		}
	}
	if err := os.WriteFile(path, append(out, '\n'), 0o600); err != nil {
		return false, codeError(1, "writing %s: %v", path, err)
	}
	return true, nil
}

// jsonEqual compares two JSON values structurally, ignoring key order
// and whitespace.
func jsonEqual(a, b json.RawMessage) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	aNorm, errA := json.Marshal(av)
	bNorm, errB := json.Marshal(bv)
	if errA != nil || errB != nil {
		return false
	}
	return string(aNorm) == string(bNorm)
}
