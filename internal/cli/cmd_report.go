//go:build linux

package cli

import (
	"encoding/json"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/rawfd/internal/probe"
)

// ReportCmd returns the report command.
func ReportCmd(cfg *probe.Config) *Command {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.String("out", "", "Write the JSON report to this file (atomic)")

	return &Command{
		Flags: fs,
		Usage: "report [flags]",
		Short: "Run a full probe and emit a JSON report",
		Long: "Probe every configured descriptor plus kernel dup capability and\n" +
			"print the report as JSON. With --out (or report_path in the config\n" +
			"file) the report is also written to disk atomically.",
		Exec: func(o *IO, _ []string) error {
			report, err := probe.Run(*cfg)
			if err != nil {
				return err
			}

			data, err := probe.MarshalReport(report)
			if err != nil {
				return err
			}

			o.Printf("%s", data)

			out, _ := fs.GetString("out")
			if out == "" {
				out = cfg.ReportPath
			}

			if out != "" {
				if err := probe.WriteReport(out, report); err != nil {
					return err
				}

				o.ErrPrintln("report written to", out)
			}

			return nil
		},
	}
}

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(cfg *probe.Config) *Command {
	fs := flag.NewFlagSet("print-config", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "print-config",
		Short: "Show the effective configuration and its source",
		Exec: func(o *IO, _ []string) error {
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}

			o.Printf("%s\n", data)
			o.Println("source:", cfg.Source)

			return nil
		},
	}
}
