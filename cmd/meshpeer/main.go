package main

import (
	"os"

	"github.com/rmacdonaldsmith/meshpeer-go/cmd/meshpeer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
