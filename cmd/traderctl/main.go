package main

import (
	"os"

	"marginbot/cmd/traderctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
