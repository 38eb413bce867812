//go:build linux

package cli

import (
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/rawfd/internal/probe"
)

// SupportCmd returns the support command.
func SupportCmd() *Command {
	fs := flag.NewFlagSet("support", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "support",
		Short: "Check kernel support for atomic dup-with-cloexec",
		Long: "Probe whether the running kernel implements F_DUPFD_CLOEXEC.\n" +
			"Kernels older than 2.6.24 reject it, forcing the racier\n" +
			"dup-then-set-flag fallback.",
		Exec: func(o *IO, _ []string) error {
			report, err := probe.Run(probe.Config{CheckDup: true})
			if err != nil {
				return err
			}

			if report.AtomicDupSupported {
				o.Println("F_DUPFD_CLOEXEC: supported")
			} else {
				o.Println("F_DUPFD_CLOEXEC: not supported (plain dup fallback in effect)")
			}

			return nil
		},
	}
}
