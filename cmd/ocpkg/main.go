// ocpkg packs and unpacks secure archival containers: a manifest encrypted
// and authenticated under a key established from a shared secret or an
// ECC key agreement, and per-item Encrypt-then-MAC ciphertext multiplexed
// into the payload region under a deterministic PRNG schedule.
package main

import (
	"github.com/ocpkg/ocpkg/internal/cli"
)

var version = "dev"

func main() {
	cli.Execute(version)
}
