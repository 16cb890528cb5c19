// motionexec: gated dispatch of planned robot motions
package main

import (
	"os"

	"github.com/teslashibe/go-motionexec/cmd/motionexec/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
