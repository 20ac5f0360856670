// instahelpctl holds the operator tooling: master key generation, device
// key provisioning, payload signing and development tokens.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
