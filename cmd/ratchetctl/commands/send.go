package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// sendCmd encrypts and sends a message to <peer>, after restoring their
// persisted session (mirrors the teacher's `send`).
func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <peer> <message>",
		Short: "Encrypt and send a message to a peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, message := args[0], args[1]
			if err := wire.loadCore(); err != nil {
				return err
			}

			handle, ok, err := loadSession(peer)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no session with %q yet; run \"session init-send %s\" first", peer, peer)
			}

			envelope, err := wire.core.Encrypt(handle, []byte(message))
			if err != nil {
				return fmt.Errorf("encrypting message to %q: %w", peer, err)
			}
			if err := persistSession(peer, handle); err != nil {
				return err
			}

			if wire.relay != nil {
				if err := wire.requireUsername(); err != nil {
					return err
				}
				if err := wire.relay.SendEnvelope(cmd.Context(), wire.username, peer, envelope); err != nil {
					return fmt.Errorf("sending to relay: %w", err)
				}
			}

			fmt.Println("Message sent")
			return nil
		},
	}
}
