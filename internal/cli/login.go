package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// newLoginCmd creates and returns a new login command
func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the management endpoint",
		Long: `Login establishes a session with the configured HMC or NovaLink
endpoint and reports what it connected to. The session token is held in
memory only; other commands establish their own sessions.

Example:
  pvmctl login`,
		RunE: runLogin,
	}
}

// runLogin handles the login command execution
func runLogin(cmd *cobra.Command, args []string) error {
	a, err := newAdapter()
	if err != nil {
		return err
	}
	sess := a.Session()
	if err := sess.Logon(cmd.Context()); err != nil {
		return err
	}
	defer sess.Logoff(context.Background())

	if jsonOutput {
		printJSON(map[string]string{
			"endpoint":       sess.Endpoint(),
			"mc_type":        sess.MCType(),
			"schema_version": sess.SchemaVersion(),
		})
		return nil
	}
	okLabel.Printf("Logged on to %s\n", sess.Endpoint())
	cmd.Printf("Console type:   %s\n", sess.MCType())
	cmd.Printf("Schema version: %s\n", sess.SchemaVersion())
	return nil
}
