// Command studio serves the workflow editor backend: graph persistence, OAuth
// integrations and hand-off of compiled workflows to the agent runtime.
package main

import (
	"fmt"
	"os"

	"github.com/captep/studio/cli"
)

func main() {
	if err := cli.RootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "studio:", err)
		os.Exit(1)
	}
}
