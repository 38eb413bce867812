//go:build linux

package cli

import (
	"fmt"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/rawfd/internal/probe"
)

// InspectCmd returns the inspect command.
func InspectCmd(cfg *probe.Config) *Command {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "inspect [<fd>...]",
		Short: "Show descriptor flag state",
		Long: "Show whether each descriptor is open, has close-on-exec set, and\n" +
			"is in non-blocking mode. Without arguments, the configured\n" +
			"descriptors are inspected (stdin/stdout/stderr by default).",
		Exec: func(o *IO, args []string) error {
			descriptors := cfg.Descriptors

			if len(args) > 0 {
				parsed, err := parseDescriptorArgs(args)
				if err != nil {
					return err
				}

				descriptors = parsed
			}

			for _, raw := range descriptors {
				status, err := probe.Inspect(raw)
				if err != nil {
					return err
				}

				printStatus(o, status)
			}

			return nil
		},
	}
}

func printStatus(o *IO, s probe.Status) {
	if !s.Open {
		o.Printf("fd %d: not open\n", s.Descriptor)
		return
	}

	o.Printf("fd %d: open cloexec=%v nonblock=%v\n", s.Descriptor, s.CloseOnExec, s.Nonblocking)
}

func parseDescriptorArgs(args []string) ([]int, error) {
	descriptors := make([]int, 0, len(args))

	for _, arg := range args {
		raw, err := strconv.Atoi(arg)
		if err != nil || raw < 0 {
			return nil, fmt.Errorf("invalid descriptor %q", arg)
		}

		descriptors = append(descriptors, raw)
	}

	return descriptors, nil
}
