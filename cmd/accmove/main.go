// Command accmove records element moves against ACC-hosted models and
// saves them back as new versions.
package main

import (
	"os"

	"github.com/kilupskalvis/accmove/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
