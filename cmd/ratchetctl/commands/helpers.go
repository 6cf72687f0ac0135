package commands

import (
	"fmt"

	"ratchetcore"
)

// persistSession snapshots the session under handle via ExportSession and
// writes it to the session store keyed by peer, so the next command
// invocation (a fresh process) can pick the conversation back up.
func persistSession(peer string, handle ratchetcore.Handle) error {
	exported, err := wire.core.ExportSession(handle)
	if err != nil {
		return fmt.Errorf("exporting session with %q: %w", peer, err)
	}
	if err := wire.sessionStore.Save(wire.passphrase, peer, exported); err != nil {
		return fmt.Errorf("saving session with %q: %w", peer, err)
	}
	return nil
}

// loadSession restores a previously persisted session for peer into the
// core, returning its fresh handle.
func loadSession(peer string) (ratchetcore.Handle, bool, error) {
	exported, ok, err := wire.sessionStore.Load(wire.passphrase, peer)
	if err != nil {
		return ratchetcore.Handle{}, false, fmt.Errorf("loading session with %q: %w", peer, err)
	}
	if !ok {
		return ratchetcore.Handle{}, false, nil
	}
	handle, err := wire.core.ImportSession(peer, exported)
	if err != nil {
		return ratchetcore.Handle{}, false, fmt.Errorf("restoring session with %q: %w", peer, err)
	}
	return handle, true, nil
}
