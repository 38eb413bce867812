//go:build linux

// fdsh is an interactive shell for exercising descriptor-level I/O.
//
// Usage:
//
//	fdsh <file>          Open a file read-write (created if missing)
//	fdsh --fd <n>        Adopt an already-open descriptor number
//
// Commands (in REPL):
//
//	read <n>               Read up to n bytes at the cursor
//	pread <n> <offset>     Positional read, cursor untouched
//	readv <n> [<n>...]     Vectored read into buffers of the given sizes
//	drain                  Read everything until end of stream
//	write <text>           Write text at the cursor
//	pwrite <text> <offset> Positional write, cursor untouched
//	writev <w> [<w>...]    Vectored write of the given words
//	cloexec                Show the close-on-exec flag
//	cloexec set            Set the close-on-exec flag
//	nonblock on|off        Toggle non-blocking mode
//	dup                    Duplicate the descriptor, report, close the dup
//	info                   Show descriptor state
//	release                Hand the raw descriptor back and exit
//	help                   Show this help
//	exit / quit / q        Close the descriptor and exit
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/calvinalkan/rawfd/pkg/rawfd"
)

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("fdsh", flag.ContinueOnError)
	adopt := fs.Int("fd", -1, "Adopt an already-open descriptor instead of opening a file")

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}

		return err
	}

	var (
		fd   *rawfd.FD
		name string
	)

	switch {
	case *adopt >= 0:
		fd = rawfd.New(*adopt)
		name = fmt.Sprintf("fd %d", *adopt)

	case fs.NArg() == 1:
		path := fs.Arg(0)

		raw, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0o644)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}

		fd = rawfd.New(raw)
		name = path

	default:
		fmt.Fprintln(os.Stderr, "Usage: fdsh <file> | fdsh --fd <n>")

		return errors.New("missing file argument")
	}

	repl := &repl{fd: fd, name: name}

	return repl.Run()
}

type repl struct {
	fd    *rawfd.FD
	name  string
	liner *liner.State
}

var replCommands = []string{
	"read", "pread", "readv", "drain",
	"write", "pwrite", "writev",
	"cloexec", "nonblock", "dup", "info", "release",
	"help", "exit", "quit",
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".fdsh_history")
}

// Run starts the REPL loop.
func (r *repl) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(func(line string) []string {
		var out []string

		for _, cmd := range replCommands {
			if strings.HasPrefix(cmd, strings.ToLower(line)) {
				out = append(out, cmd)
			}
		}

		return out
	})

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("fdsh - descriptor shell (%s, fd %d)\n", r.name, r.fd.Raw())
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("fdsh> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		done, err := r.dispatch(cmd, args)
		if err != nil {
			fmt.Println("error:", err)
		}

		if done {
			break
		}
	}

	r.saveHistory()
	r.fd.Close()

	return nil
}

func (r *repl) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}

	if f, err := os.Create(path); err == nil {
		_, _ = r.liner.WriteHistory(f)
		f.Close()
	}
}

// dispatch executes one command. The bool result signals REPL exit.
func (r *repl) dispatch(cmd string, args []string) (bool, error) {
	switch cmd {
	case "read":
		return false, r.cmdRead(args)
	case "pread":
		return false, r.cmdPread(args)
	case "readv":
		return false, r.cmdReadv(args)
	case "drain":
		return false, r.cmdDrain()
	case "write":
		return false, r.cmdWrite(args)
	case "pwrite":
		return false, r.cmdPwrite(args)
	case "writev":
		return false, r.cmdWritev(args)
	case "cloexec":
		return false, r.cmdCloexec(args)
	case "nonblock":
		return false, r.cmdNonblock(args)
	case "dup":
		return false, r.cmdDup()
	case "info":
		return false, r.cmdInfo()
	case "release":
		raw := r.fd.Release()
		fmt.Printf("released fd %d - it stays open, you own it now\n", raw)

		return true, nil
	case "help":
		printHelp()

		return false, nil
	case "exit", "quit", "q":
		fmt.Println("Bye!")

		return true, nil
	}

	return false, fmt.Errorf("unknown command: %s (try 'help')", cmd)
}

func (r *repl) cmdRead(args []string) error {
	n, err := intArg(args, 0, "read <n>")
	if err != nil {
		return err
	}

	buf := make([]byte, n)

	got, err := r.fd.Read(buf)
	if err != nil {
		return err
	}

	printBytes(buf[:got])

	return nil
}

func (r *repl) cmdPread(args []string) error {
	n, err := intArg(args, 0, "pread <n> <offset>")
	if err != nil {
		return err
	}

	offset, err := intArg(args, 1, "pread <n> <offset>")
	if err != nil {
		return err
	}

	buf := make([]byte, n)

	got, err := r.fd.ReadAt(buf, int64(offset))
	if err != nil {
		return err
	}

	printBytes(buf[:got])

	return nil
}

func (r *repl) cmdReadv(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: readv <n> [<n>...]")
	}

	iovs := make([][]byte, 0, len(args))

	for _, arg := range args {
		size, err := strconv.Atoi(arg)
		if err != nil || size < 0 {
			return fmt.Errorf("invalid buffer size %q", arg)
		}

		iovs = append(iovs, make([]byte, size))
	}

	got, err := r.fd.ReadVectored(iovs)
	if err != nil {
		return err
	}

	fmt.Printf("%d bytes across %d buffers\n", got, len(iovs))

	for i, iov := range iovs {
		if got <= 0 {
			break
		}

		n := min(got, len(iov))
		fmt.Printf("  [%d] ", i)
		printBytes(iov[:n])
		got -= n
	}

	return nil
}

func (r *repl) cmdDrain() error {
	var buf []byte

	n, err := r.fd.ReadToEnd(&buf)
	if err != nil {
		return err
	}

	fmt.Printf("%d bytes\n", n)
	printBytes(buf)

	return nil
}

func (r *repl) cmdWrite(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: write <text>")
	}

	n, err := r.fd.Write([]byte(strings.Join(args, " ")))
	if err != nil {
		return err
	}

	fmt.Printf("wrote %d bytes\n", n)

	return nil
}

func (r *repl) cmdPwrite(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: pwrite <text> <offset>")
	}

	offset, err := strconv.Atoi(args[len(args)-1])
	if err != nil || offset < 0 {
		return fmt.Errorf("invalid offset %q", args[len(args)-1])
	}

	data := strings.Join(args[:len(args)-1], " ")

	n, err := r.fd.WriteAt([]byte(data), int64(offset))
	if err != nil {
		return err
	}

	fmt.Printf("wrote %d bytes at offset %d\n", n, offset)

	return nil
}

func (r *repl) cmdWritev(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: writev <word> [<word>...]")
	}

	iovs := make([][]byte, 0, len(args))
	for _, arg := range args {
		iovs = append(iovs, []byte(arg))
	}

	n, err := r.fd.WriteVectored(iovs)
	if err != nil {
		return err
	}

	fmt.Printf("wrote %d bytes from %d buffers\n", n, len(iovs))

	return nil
}

func (r *repl) cmdCloexec(args []string) error {
	if len(args) == 1 && args[0] == "set" {
		if err := r.fd.SetCloseOnExec(); err != nil {
			return err
		}

		fmt.Println("cloexec set")

		return nil
	}

	set, err := r.fd.CloseOnExec()
	if err != nil {
		return err
	}

	fmt.Printf("cloexec=%v\n", set)

	return nil
}

func (r *repl) cmdNonblock(args []string) error {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return errors.New("usage: nonblock on|off")
	}

	if err := r.fd.SetNonblock(args[0] == "on"); err != nil {
		return err
	}

	fmt.Printf("nonblock=%v\n", args[0] == "on")

	return nil
}

func (r *repl) cmdDup() error {
	dup, err := r.fd.Dup()
	if err != nil {
		return err
	}

	cloexec, err := dup.CloseOnExec()
	if err != nil {
		dup.Close()

		return err
	}

	fmt.Printf("duplicated fd %d to fd %d cloexec=%v (closing dup)\n", r.fd.Raw(), dup.Raw(), cloexec)
	dup.Close()

	return nil
}

func (r *repl) cmdInfo() error {
	cloexec, err := r.fd.CloseOnExec()
	if err != nil {
		return err
	}

	flags, err := unix.FcntlInt(uintptr(r.fd.Raw()), unix.F_GETFL, 0)
	if err != nil {
		return err
	}

	fmt.Printf("%s: fd=%d cloexec=%v nonblock=%v\n",
		r.name, r.fd.Raw(), cloexec, flags&unix.O_NONBLOCK != 0)

	return nil
}

func intArg(args []string, i int, usage string) (int, error) {
	if i >= len(args) {
		return 0, errors.New("usage: " + usage)
	}

	n, err := strconv.Atoi(args[i])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid number %q", args[i])
	}

	return n, nil
}

func printBytes(p []byte) {
	if len(p) == 0 {
		fmt.Println("(end of stream)")

		return
	}

	fmt.Printf("%q\n", p)
}

func printHelp() {
	fmt.Print(`Commands:
  read <n>               Read up to n bytes at the cursor
  pread <n> <offset>     Positional read, cursor untouched
  readv <n> [<n>...]     Vectored read into buffers of the given sizes
  drain                  Read everything until end of stream
  write <text>           Write text at the cursor
  pwrite <text> <offset> Positional write, cursor untouched
  writev <w> [<w>...]    Vectored write of the given words
  cloexec [set]          Show or set the close-on-exec flag
  nonblock on|off        Toggle non-blocking mode
  dup                    Duplicate the descriptor, report, close the dup
  info                   Show descriptor state
  release                Hand the raw descriptor back and exit
  exit / quit / q        Close the descriptor and exit
`)
}
