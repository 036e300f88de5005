package main

import (
	"os"

	"enginectl/internal/cli"
)

func main() { os.Exit(cli.Main()) }
