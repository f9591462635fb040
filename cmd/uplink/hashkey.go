package main

import (
	"fmt"
	"io"

	"github.com/agentdeck/uplink/internal/auth"
)

// runHashKey hashes a shared secret for the api_key_hash config field,
// so the plaintext key never has to live in the config file.
func runHashKey(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 || args[0] == "" {
		fmt.Fprintln(stderr, "Usage: uplink hash-key <key>")
		return 1
	}

	hash, err := auth.HashKey(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to hash key: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, hash)
	fmt.Fprintln(stderr, "Add to ~/.agentdeck/uplink.toml:")
	fmt.Fprintf(stderr, "  api_key_hash = %q\n", hash)
	return 0
}
