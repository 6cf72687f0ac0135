package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// recvCmd fetches and decrypts queued messages for --username, establishing
// a receiving session on the fly for any new sender (mirrors the teacher's
// `recv`, extended to cover the first-contact case `init-recv` also
// handles, so a steady-state "recv loop" never needs a separate step).
func recvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recv",
		Short: "Fetch and decrypt your queued messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.loadCore(); err != nil {
				return err
			}
			if err := wire.requireRelay(); err != nil {
				return err
			}
			if err := wire.requireUsername(); err != nil {
				return err
			}

			envs, err := wire.relay.FetchEnvelopes(cmd.Context(), wire.username, 0)
			if err != nil {
				return fmt.Errorf("fetching queued messages: %w", err)
			}
			if len(envs) == 0 {
				fmt.Println("No new messages")
				return nil
			}

			for _, qe := range envs {
				pt, err := deliverOne(cmd, qe.From, qe.Envelope)
				if err != nil {
					fmt.Printf("[%s] <undeliverable: %v>\n", qe.From, err)
					continue
				}
				fmt.Printf("[%s] %s\n", qe.From, string(pt))
			}

			if err := wire.relay.AckEnvelopes(cmd.Context(), wire.username, len(envs)); err != nil {
				return fmt.Errorf("acking relay queue: %w", err)
			}
			return nil
		},
	}
}

// deliverOne decrypts a single envelope from sender, restoring an existing
// session or establishing a new one against the sender's published bundle.
func deliverOne(cmd *cobra.Command, from string, envelope []byte) ([]byte, error) {
	handle, ok, err := loadSession(from)
	if err != nil {
		return nil, err
	}
	if ok {
		pt, err := wire.core.Decrypt(handle, envelope)
		if err != nil {
			return nil, err
		}
		return pt, persistSession(from, handle)
	}

	peerBundle, err := wire.relay.FetchBundle(cmd.Context(), from)
	if err != nil {
		return nil, fmt.Errorf("fetching %q's bundle: %w", from, err)
	}
	newHandle, pt, err := wire.core.InitReceivingSession(from, peerBundle, envelope)
	if err != nil {
		return nil, err
	}
	return pt, persistSession(from, newHandle)
}
