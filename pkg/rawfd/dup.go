//go:build linux

package rawfd

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// dupCloexecUnsupported records, process-wide, that the running kernel
// rejected F_DUPFD_CLOEXEC with EINVAL (kernels before 2.6.24 do not
// implement it). The flag only ever moves from false to true and is
// never reset; races between goroutines making the same observation are
// harmless, so plain atomic loads and stores suffice.
var dupCloexecUnsupported atomic.Bool

// Dup duplicates the descriptor, returning a new FD that owns a
// distinct descriptor number referring to the same open file
// description, with close-on-exec set on the result.
//
// When the kernel supports it, duplication and flag-set happen in one
// atomic F_DUPFD_CLOEXEC call, so a concurrent fork+exec in another
// thread cannot observe the new descriptor without the flag. On kernels
// that reject that call with EINVAL, Dup falls back - once per process,
// then cached - to plain dup(2) followed by an explicit flag set, which
// is the best available on those kernels despite the exec race window.
func (fd *FD) Dup() (*FD, error) {
	if fd.raw < 0 {
		return nil, unix.EBADF
	}

	if !dupCloexecUnsupported.Load() {
		raw, err := fd.sys.fcntl(fd.raw, unix.F_DUPFD_CLOEXEC, 0)

		switch {
		case err == nil:
			dup := newFD(raw, fd.sys)

			// Some kernels have reported success here without actually
			// setting the flag, so set it explicitly regardless. The
			// flag check inside SetCloseOnExec makes this a single
			// F_GETFD when the kernel behaved.
			if err := dup.SetCloseOnExec(); err != nil {
				dup.Close()

				return nil, err
			}

			return dup, nil

		case errors.Is(err, unix.EINVAL):
			// EINVAL with a third argument of 0 can only mean the
			// command itself is unrecognized: remember that and fall
			// back for the rest of the process lifetime.
			dupCloexecUnsupported.Store(true)

		default:
			return nil, err
		}
	}

	raw, err := fd.sys.dup(fd.raw)
	if err != nil {
		return nil, err
	}

	dup := newFD(raw, fd.sys)

	if err := dup.SetCloseOnExec(); err != nil {
		dup.Close()

		return nil, err
	}

	return dup, nil
}
