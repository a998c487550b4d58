package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/vmforge/pvmclient/pkg/adapter"
)

// newDeleteCmd creates and returns a new delete command
func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete TYPE UUID",
		Short: "Delete a resource instance",
		Long: `Delete removes a resource instance. The --etag flag is required and
must carry the ETag from a prior get: the server refuses the delete if
the resource changed since that read.

Example:
  pvmctl delete LogicalPartition 0A68CF... --etag 1385360538926`,
		Args: cobra.ExactArgs(2),
		RunE: runDelete,
	}
	cmd.Flags().String("etag", "", "ETag from a prior get (required)")
	cmd.MarkFlagRequired("etag")
	return cmd
}

// runDelete handles the delete command execution
func runDelete(cmd *cobra.Command, args []string) error {
	a, err := newAdapter()
	if err != nil {
		return err
	}
	defer a.Session().Logoff(context.Background())

	etag, _ := cmd.Flags().GetString("etag")
	err = a.Delete(cmd.Context(), adapter.Ident{RootType: args[0], RootID: args[1]}, etag)
	if err != nil {
		if errors.Is(err, adapter.ErrConflict) {
			if cur := adapter.ConflictETag(err); cur != "" {
				return errors.New("resource changed since it was read; current ETag is " + cur)
			}
		}
		return err
	}

	if jsonOutput {
		printJSON(map[string]string{"deleted": args[1]})
		return nil
	}
	okLabel.Printf("Deleted %s %s\n", args[0], args[1])
	return nil
}
