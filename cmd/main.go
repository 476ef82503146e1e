package main

import (
	"os"

	"github.com/NDI05/ums-dental-platform-sub001/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
