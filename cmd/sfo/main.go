// Command sfo runs the stepwise forward selection merge step offline: it
// merges candidate gain records into a model file, ranks candidates, and
// inspects or plots checkpointed runs.
package main

import (
	"fmt"
	"os"

	sfoerrors "github.com/YuminosukeSato/stepwise/pkg/errors"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sfo: %s: %v\n", sfoerrors.Kind(err), err)
		os.Exit(1)
	}
}
