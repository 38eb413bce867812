//go:build linux

// Package main provides fdprobe, a diagnostic tool that inspects file
// descriptors of the running process.
package main

import (
	"os"

	"github.com/calvinalkan/rawfd/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Stdout, os.Stderr, os.Args))
}
