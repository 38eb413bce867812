//go:build linux

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/calvinalkan/rawfd/internal/probe"
)

// globalFlags holds flags that apply before command dispatch.
type globalFlags struct {
	configPath string
	remaining  []string
}

// parseGlobalFlags extracts global flags from the front of args.
// Only --config/-c is global; everything else belongs to the command.
func parseGlobalFlags(args []string) (globalFlags, error) {
	var flags globalFlags

	i := 0
	for i < len(args) {
		arg := args[i]

		switch {
		case arg == "--config" || arg == "-c":
			if i+1 >= len(args) {
				return globalFlags{}, fmt.Errorf("%s requires a path", arg)
			}

			flags.configPath = args[i+1]
			i += 2

		case strings.HasPrefix(arg, "--config="):
			flags.configPath = strings.TrimPrefix(arg, "--config=")
			i++

		default:
			flags.remaining = args[i:]
			return flags, nil
		}
	}

	return flags, nil
}

// commands builds the command registry for the given config.
func commands(cfg *probe.Config) []*Command {
	return []*Command{
		InspectCmd(cfg),
		DupCmd(),
		SupportCmd(),
		ReportCmd(cfg),
		PrintConfigCmd(cfg),
	}
}

// Run is the fdprobe entry point. Returns the process exit code.
func Run(out, errOut io.Writer, args []string) int {
	o := NewIO(out, errOut)

	if len(args) < 2 {
		printUsage(o)
		return 0
	}

	flags, err := parseGlobalFlags(args[1:])
	if err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}

	if len(flags.remaining) == 0 {
		printUsage(o)
		return 0
	}

	name := flags.remaining[0]
	if name == "-h" || name == "--help" {
		printUsage(o)
		return 0
	}

	cfg, err := probe.LoadConfig(flags.configPath)
	if err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}

	for _, cmd := range commands(&cfg) {
		if cmd.Name() == name {
			return cmd.Run(o, flags.remaining[1:])
		}
	}

	o.ErrPrintln("error: unknown command:", name)
	printUsage(o)

	return 1
}

func printUsage(o *IO) {
	o.Println("Usage: fdprobe [--config <path>] <command> [flags]")
	o.Println()
	o.Println("Inspect file descriptors of the running process.")
	o.Println()
	o.Println("Commands:")

	for _, cmd := range commands(&probe.Config{}) {
		o.Println(cmd.HelpLine())
	}

	o.Println()
	o.Println("Run 'fdprobe <command> --help' for command details.")
}
