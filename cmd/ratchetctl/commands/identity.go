package commands

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"ratchetcore"
)

func identityCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "identity", Short: "Manage the local long-term identity"}
	cmd.AddCommand(identityInitCmd(), identityFingerprintCmd(), identityRotatePreKeyCmd())
	return cmd
}

// identityInitCmd generates a fresh identity and an initial signed prekey,
// then stores them encrypted on disk (mirrors the teacher's `init`).
func identityInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new local identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exists, err := wire.identityStore.Exists()
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("identity already exists at %s (delete it first to rotate from scratch)", wire.home)
			}
			if wire.passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}

			core, err := ratchetcore.CreateCore(wire.suite, ratchetcore.Config{})
			if err != nil {
				return fmt.Errorf("creating identity: %w", err)
			}
			if err := wire.identityStore.Save(wire.passphrase, core.ExportIdentity()); err != nil {
				return fmt.Errorf("saving identity: %w", err)
			}
			wire.core = core

			fmt.Println("Identity created.")
			fmt.Printf("Fingerprint: %s\n", bundleFingerprint(core))
			return nil
		},
	}
}

// identityFingerprintCmd prints the SHA-256 fingerprint of the identity key
// (mirrors the teacher's `fingerprint`), a human-verifiable out-of-band
// check against the registration bundle's ik_pub field.
func identityFingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the identity key fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.loadCore(); err != nil {
				return err
			}
			fmt.Printf("Fingerprint: %s\n", bundleFingerprint(wire.core))
			return nil
		},
	}
}

// identityRotatePreKeyCmd rotates the signed prekey without disturbing any
// live session (mirrors spec.md §4.2's rotation semantics).
func identityRotatePreKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-prekey",
		Short: "Rotate the signed prekey",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.loadCore(); err != nil {
				return err
			}
			update, err := wire.core.RotateSignedPreKey()
			if err != nil {
				return fmt.Errorf("rotating signed prekey: %w", err)
			}
			if err := wire.identityStore.Save(wire.passphrase, wire.core.ExportIdentity()); err != nil {
				return fmt.Errorf("saving rotated identity: %w", err)
			}
			fmt.Printf("Rotated to signed prekey generation %d\n", update.ID)
			return nil
		},
	}
}

func bundleFingerprint(core *ratchetcore.Core) string {
	ik := core.IdentityPublicKey()
	sum := sha256.Sum256(ik.Slice())
	return hex.EncodeToString(sum[:])
}
