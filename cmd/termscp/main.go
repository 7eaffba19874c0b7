// termscp - A feature rich terminal file transfer client.
package main

import (
	"os"

	"github.com/rescale-labs/termscp/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
