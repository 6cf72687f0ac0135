package commands

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"
)

func bundleCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "bundle", Short: "Registration bundle operations"}
	cmd.AddCommand(bundleExportCmd())
	return cmd
}

// bundleExportCmd prints the canonical-byte registration bundle, base64
// encoded, and publishes it to the relay if one is configured.
func bundleExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export this identity's registration bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.loadCore(); err != nil {
				return err
			}
			b := wire.core.ExportBundleStructured()
			fmt.Println(base64.StdEncoding.EncodeToString(b))

			if wire.relay != nil {
				if err := wire.requireUsername(); err != nil {
					return err
				}
				if err := wire.relay.PutBundle(cmd.Context(), wire.username, b); err != nil {
					return fmt.Errorf("publishing bundle: %w", err)
				}
				fmt.Printf("Published to relay as %q\n", wire.username)
			}
			return nil
		},
	}
}
