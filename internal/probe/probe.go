//go:build linux

// Package probe inspects file descriptors of the running process and
// reports their kernel-level state: whether they are open, whether
// close-on-exec is set, whether they are in non-blocking mode, and
// whether the kernel supports atomic duplicate-with-cloexec.
//
// probe is a consumer of [rawfd]: it wraps descriptors it does not own
// with [rawfd.New] and hands them back via [rawfd.FD.Release] once the
// inspection is done, so the probed process state is never disturbed.
package probe

import (
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/calvinalkan/rawfd/pkg/rawfd"
)

// Sentinel errors returned by probe operations.
var (
	// ErrNotOpen indicates the probed integer is not an open descriptor.
	ErrNotOpen = errors.New("probe: descriptor not open")

	// ErrInvalidConfig indicates the config file could not be parsed or
	// failed validation.
	ErrInvalidConfig = errors.New("probe: invalid config")
)

// Status is the observed kernel state of one descriptor.
type Status struct {
	Descriptor  int  `json:"descriptor"`
	Open        bool `json:"open"`
	CloseOnExec bool `json:"close_on_exec"`
	Nonblocking bool `json:"nonblocking"`
}

// Report is the result of a full probe run.
type Report struct {
	// AtomicDupSupported reports whether F_DUPFD_CLOEXEC works on the
	// running kernel.
	AtomicDupSupported bool `json:"atomic_dup_supported"`

	// Descriptors holds one entry per configured descriptor, in the
	// order given by the config.
	Descriptors []Status `json:"descriptors"`
}

// Inspect returns the kernel state of the descriptor raw without taking
// ownership of it or altering it.
//
// A closed descriptor yields Status{Open: false} and a nil error; other
// kernel errors propagate untranslated.
func Inspect(raw int) (Status, error) {
	fd := rawfd.New(raw)
	defer fd.Release() // inspection only, the caller keeps ownership

	status := Status{Descriptor: raw}

	cloexec, err := fd.CloseOnExec()
	if err != nil {
		if errors.Is(err, unix.EBADF) {
			return status, nil
		}

		return Status{}, err
	}

	status.Open = true
	status.CloseOnExec = cloexec

	flags, err := unix.FcntlInt(uintptr(raw), unix.F_GETFL, 0)
	if err != nil {
		return Status{}, err
	}

	status.Nonblocking = flags&unix.O_NONBLOCK != 0

	return status, nil
}

// ToggleNonblock flips the descriptor into non-blocking mode and back,
// verifying both transitions stick. The descriptor is left in its
// original blocking state.
func ToggleNonblock(raw int) error {
	fd := rawfd.New(raw)
	defer fd.Release()

	before, err := unix.FcntlInt(uintptr(raw), unix.F_GETFL, 0)
	if err != nil {
		if errors.Is(err, unix.EBADF) {
			return fmt.Errorf("%w: %d", ErrNotOpen, raw)
		}

		return err
	}

	wasNonblocking := before&unix.O_NONBLOCK != 0

	if err := fd.SetNonblock(!wasNonblocking); err != nil {
		return fmt.Errorf("toggling descriptor %d: %w", raw, err)
	}

	if err := fd.SetNonblock(wasNonblocking); err != nil {
		return fmt.Errorf("restoring descriptor %d: %w", raw, err)
	}

	after, err := unix.FcntlInt(uintptr(raw), unix.F_GETFL, 0)
	if err != nil {
		return err
	}

	if after&unix.O_NONBLOCK != before&unix.O_NONBLOCK {
		return fmt.Errorf("descriptor %d: non-blocking state not restored", raw)
	}

	return nil
}

// AtomicDupSupported probes whether the running kernel implements
// F_DUPFD_CLOEXEC, using the descriptor raw as the duplication source.
// The probe descriptor is closed before returning.
//
// The detection mirrors what [rawfd.FD.Dup] does internally: EINVAL for
// a zero third argument can only mean the command is unrecognized.
func AtomicDupSupported(raw int) (bool, error) {
	dup, err := unix.FcntlInt(uintptr(raw), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.EINVAL) {
			return false, nil
		}

		if errors.Is(err, unix.EBADF) {
			return false, fmt.Errorf("%w: %d", ErrNotOpen, raw)
		}

		return false, err
	}

	rawfd.New(dup).Close()

	return true, nil
}

// Run probes every descriptor named by cfg and the kernel's dup
// capability, returning the combined report.
//
// Closed descriptors are reported as such, not treated as errors; only
// unexpected kernel failures abort the run.
func Run(cfg Config) (Report, error) {
	report := Report{Descriptors: make([]Status, 0, len(cfg.Descriptors))}

	for _, raw := range cfg.Descriptors {
		status, err := Inspect(raw)
		if err != nil {
			return Report{}, fmt.Errorf("inspecting descriptor %d: %w", raw, err)
		}

		if status.Open && cfg.ToggleNonblock {
			if err := ToggleNonblock(raw); err != nil {
				return Report{}, err
			}
		}

		report.Descriptors = append(report.Descriptors, status)
	}

	if cfg.CheckDup {
		source, cleanup, err := probeSource(report.Descriptors)
		if err != nil {
			return Report{}, err
		}

		supported, err := AtomicDupSupported(source)

		cleanup()

		if err != nil {
			return Report{}, err
		}

		report.AtomicDupSupported = supported
	}

	return report, nil
}

// probeSource picks an open descriptor to use as the dup-capability
// probe source, falling back to a private /dev/null descriptor when
// none of the configured ones are open. The returned cleanup closes the
// fallback descriptor and is a no-op for configured ones.
func probeSource(statuses []Status) (int, func(), error) {
	for _, s := range statuses {
		if s.Open {
			return s.Descriptor, func() {}, nil
		}
	}

	raw, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, nil, fmt.Errorf("opening probe source: %w", err)
	}

	fd := rawfd.New(raw)

	return fd.Raw(), fd.Close, nil
}

// MarshalReport renders a report as indented JSON, trailing newline
// included, ready for [WriteReport] or direct printing.
func MarshalReport(report Report) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}

	return append(data, '\n'), nil
}
