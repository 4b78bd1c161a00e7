package main

import (
	"fmt"
	"os"

	"github.com/ekaya-inc/ekaya-adsync/pkg/cli"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := cli.Execute(Version); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
