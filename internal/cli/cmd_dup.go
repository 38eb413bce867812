//go:build linux

package cli

import (
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/calvinalkan/rawfd/pkg/rawfd"
)

// DupCmd returns the dup command.
func DupCmd() *Command {
	fs := flag.NewFlagSet("dup", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "dup <fd>",
		Short: "Duplicate a descriptor and report the result",
		Long: "Duplicate the given descriptor with close-on-exec set, report the\n" +
			"new descriptor number and its flag state, then close the duplicate.\n" +
			"The original descriptor is left untouched.",
		Exec: func(o *IO, args []string) error {
			if len(args) != 1 {
				return errors.New("dup takes exactly one descriptor number")
			}

			raws, err := parseDescriptorArgs(args)
			if err != nil {
				return err
			}

			fd := rawfd.New(raws[0])
			defer fd.Release() // borrowed, the process keeps ownership

			dup, err := fd.Dup()
			if err != nil {
				if errors.Is(err, unix.EBADF) {
					return fmt.Errorf("fd %d is not open", raws[0])
				}

				return fmt.Errorf("duplicating fd %d: %w", raws[0], err)
			}

			cloexec, err := dup.CloseOnExec()
			if err != nil {
				dup.Close()

				return err
			}

			o.Printf("fd %d duplicated to fd %d cloexec=%v\n", raws[0], dup.Raw(), cloexec)
			dup.Close()

			return nil
		},
	}
}
