// Command ratchetctl is a minimal host binding for the ratchetcore façade:
// it owns the passphrase, the filesystem, and the relay connection so the
// core itself never has to.
package main

import (
	"fmt"
	"os"

	"ratchetcore/cmd/ratchetctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ratchetctl:", err)
		os.Exit(1)
	}
}
