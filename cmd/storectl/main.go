package main

import (
	"github.com/merchantry/merchantry/internal/cli"
)

func main() {
	cli.Execute()
}
