package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "session", Short: "Establish sessions with peers"}
	cmd.AddCommand(sessionInitSendCmd(), sessionInitRecvCmd())
	return cmd
}

// sessionInitSendCmd fetches peer's bundle from the relay and runs the
// initiator side of the X3DH handshake (mirrors the teacher's
// `start-session`). No message is sent yet; the first Encrypt call happens
// via `send`.
func sessionInitSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-send <peer>",
		Short: "Start a sending session toward a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer := args[0]
			if err := wire.loadCore(); err != nil {
				return err
			}
			if err := wire.requireRelay(); err != nil {
				return err
			}

			peerBundle, err := wire.relay.FetchBundle(cmd.Context(), peer)
			if err != nil {
				return fmt.Errorf("fetching %q's bundle: %w", peer, err)
			}

			handle, err := wire.core.InitSendingSession(peer, peerBundle)
			if err != nil {
				return fmt.Errorf("starting session with %q: %w", peer, err)
			}
			if err := persistSession(peer, handle); err != nil {
				return err
			}

			fmt.Printf("Session started with %s\n", peer)
			return nil
		},
	}
}

// sessionInitRecvCmd looks at the oldest envelope queued from peer, runs the
// responder side of the handshake against it, and prints the recovered
// plaintext.
func sessionInitRecvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-recv <peer>",
		Short: "Accept a peer's first message, establishing a receiving session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer := args[0]
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
			idx, found := -1, false
			for i, e := range envs {
				if e.From == peer {
					idx, found = i, true
					break
				}
			}
			if !found {
				return fmt.Errorf("no queued message from %q yet", peer)
			}

			peerBundle, err := wire.relay.FetchBundle(cmd.Context(), peer)
			if err != nil {
				return fmt.Errorf("fetching %q's bundle: %w", peer, err)
			}

			handle, pt, err := wire.core.InitReceivingSession(peer, peerBundle, envs[idx].Envelope)
			if err != nil {
				return fmt.Errorf("accepting session from %q: %w", peer, err)
			}
			if err := persistSession(peer, handle); err != nil {
				return err
			}
			if err := wire.relay.AckEnvelopes(cmd.Context(), wire.username, idx+1); err != nil {
				return fmt.Errorf("acking relay queue: %w", err)
			}

			fmt.Printf("[%s] %s\n", peer, string(pt))
			return nil
		},
	}
}

