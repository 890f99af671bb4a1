package main

import (
	"os"

	"github.com/serptrend/serptrend/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
