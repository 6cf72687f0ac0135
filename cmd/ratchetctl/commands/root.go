// Package commands wires ratchetctl's cobra subcommands to the ratchetcore
// façade and the host-side persistence/relay helpers. None of this package
// touches cryptographic state directly; it only loads/saves opaque bytes
// ratchetcore produces and consumes.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"ratchetcore"
	"ratchetcore/internal/hoststore"
	"ratchetcore/internal/relayclient"
	"ratchetcore/internal/suite"
)

var (
	homeDir    string
	passphrase string
	relayURL   string
	username   string

	wire *ctlWire
)

// ctlWire holds the dependencies built in PersistentPreRunE, mirroring the
// teacher's app.Wire.
type ctlWire struct {
	home       string
	passphrase string
	username   string

	identityStore *hoststore.IdentityStore
	sessionStore  *hoststore.SessionStore
	relay         *relayclient.HTTP

	suite suite.Suite
	core  *ratchetcore.Core
}

// loadCore lazily restores the Core from the identity store; commands other
// than "identity init" require one to already exist.
func (w *ctlWire) loadCore() error {
	if w.core != nil {
		return nil
	}
	if w.passphrase == "" {
		return fmt.Errorf("passphrase required (-p)")
	}
	ri, err := w.identityStore.Load(w.passphrase)
	if err != nil {
		return fmt.Errorf("loading identity: %w", err)
	}
	w.core = ratchetcore.RestoreCore(w.suite, ratchetcore.Config{}, ri)
	return nil
}

func (w *ctlWire) requireRelay() error {
	if w.relay == nil {
		return fmt.Errorf("no relay configured; use --relay")
	}
	return nil
}

func (w *ctlWire) requireUsername() error {
	if w.username == "" {
		return fmt.Errorf("--username required")
	}
	return nil
}

// Execute builds the wire and runs the root cobra command.
func Execute() error {
	root := &cobra.Command{
		Use:   "ratchetctl",
		Short: "End-to-end encrypted session demo over the ratchetcore façade",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if homeDir == "" {
				if h, err := os.UserHomeDir(); err == nil {
					homeDir = filepath.Join(h, ".ratchetctl")
				}
			}
			if err := os.MkdirAll(homeDir, 0o700); err != nil {
				return fmt.Errorf("creating home dir: %w", err)
			}

			wire = &ctlWire{
				home:          homeDir,
				passphrase:    passphrase,
				username:      username,
				identityStore: hoststore.NewIdentityStore(homeDir),
				sessionStore:  hoststore.NewSessionStore(homeDir),
				suite:         suite.NewClassic(),
			}
			if relayURL != "" {
				wire.relay = relayclient.New(relayURL)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&homeDir, "home", "", "state directory (default: $HOME/.ratchetctl)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting local state at rest")
	root.PersistentFlags().StringVar(&relayURL, "relay", "", "relaydemo base URL, e.g. http://127.0.0.1:8088")
	root.PersistentFlags().StringVarP(&username, "username", "u", "", "this identity's name on the relay")

	root.AddCommand(identityCmd(), bundleCmd(), sessionCmd(), sendCmd(), recvCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	root.SetContext(ctx)

	return root.Execute()
}
