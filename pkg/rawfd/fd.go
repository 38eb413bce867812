//go:build linux

package rawfd

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// FD owns a raw Unix file descriptor.
//
// An FD closes its descriptor exactly once: via [FD.Close], or via a GC
// finalizer if the value becomes unreachable while still armed. Use
// [FD.Release] to take the integer back and disarm the wrapper.
//
// The caller of [New] asserts that the integer is a valid, currently
// open descriptor owned by nobody else. FD never verifies this; a stale
// integer surfaces as EBADF from the first operation that uses it.
type FD struct {
	raw int
	sys *sysops
}

// New takes ownership of the descriptor raw.
//
// The returned FD is armed: if it is garbage collected before Close or
// Release, a finalizer closes the descriptor so it cannot leak. Do not
// keep using raw directly after handing it to New.
func New(raw int) *FD {
	return newFD(raw, defaultSys)
}

func newFD(raw int, sys *sysops) *FD {
	fd := &FD{raw: raw, sys: sys}
	runtime.SetFinalizer(fd, (*FD).Close)

	return fd
}

// Raw returns the descriptor integer without transferring ownership.
//
// The integer stays valid only while fd is live and armed; do not close
// it or store it past the FD's lifetime.
func (fd *FD) Raw() int {
	return fd.raw
}

// Release transfers the descriptor to the caller and disarms fd.
//
// No close is issued, now or at finalization - the caller takes over
// the close obligation. After Release every operation on fd fails with
// [unix.EBADF]. Returns -1 if fd was already closed or released.
func (fd *FD) Release() int {
	raw := fd.raw
	fd.raw = -1
	runtime.SetFinalizer(fd, nil)

	return raw
}

// Close closes the descriptor. Calling Close again, or after Release,
// is a no-op.
//
// The kernel's close result is discarded on purpose: if close(2) fails
// the descriptor's fate is ambiguous (it may or may not be gone), and
// retrying could close an unrelated descriptor that reused the number.
// Callers that need close-time durability guarantees should sync before
// closing.
func (fd *FD) Close() {
	if fd.raw < 0 {
		return
	}

	raw := fd.raw
	fd.raw = -1
	runtime.SetFinalizer(fd, nil)

	_ = fd.sys.close(raw)
}

// --- Stream I/O ---

// Read issues a single read(2) into p and returns the byte count.
//
// A return of (0, nil) on a non-empty p signals end of stream for
// stream-like descriptors. Errors are the raw kernel errno.
func (fd *FD) Read(p []byte) (int, error) {
	if fd.raw < 0 {
		return 0, unix.EBADF
	}

	return fd.sys.read(fd.raw, clampRW(p))
}

// ReadVectored scatters a single readv(2) across iovs, in order.
func (fd *FD) ReadVectored(iovs [][]byte) (int, error) {
	if fd.raw < 0 {
		return 0, unix.EBADF
	}

	return fd.sys.readv(fd.raw, clampVec(iovs))
}

// ReadToEnd reads until end of stream, appending to *buf, and returns
// the total number of bytes appended. On error the bytes read so far
// remain in *buf and the first hard error is returned.
func (fd *FD) ReadToEnd(buf *[]byte) (int, error) {
	if fd.raw < 0 {
		return 0, unix.EBADF
	}

	total := 0

	for {
		if len(*buf) == cap(*buf) {
			// Grow without discarding accumulated bytes.
			*buf = append(*buf, 0)[:len(*buf)]
		}

		n, err := fd.sys.read(fd.raw, clampRW((*buf)[len(*buf):cap(*buf)]))
		if n > 0 {
			*buf = (*buf)[:len(*buf)+n]
			total += n
		}

		if err != nil {
			return total, err
		}

		if n == 0 {
			return total, nil
		}
	}
}

// ReadAt issues a single pread(2) at the given absolute offset.
//
// Positional reads do not observe or advance the descriptor's implicit
// file position.
func (fd *FD) ReadAt(p []byte, offset int64) (int, error) {
	if fd.raw < 0 {
		return 0, unix.EBADF
	}

	return fd.sys.pread(fd.raw, clampRW(p), offset)
}

// Write issues a single write(2) from p and returns the byte count,
// which may be short. Errors are the raw kernel errno.
func (fd *FD) Write(p []byte) (int, error) {
	if fd.raw < 0 {
		return 0, unix.EBADF
	}

	return fd.sys.write(fd.raw, clampRW(p))
}

// WriteVectored gathers a single writev(2) from iovs, in order.
func (fd *FD) WriteVectored(iovs [][]byte) (int, error) {
	if fd.raw < 0 {
		return 0, unix.EBADF
	}

	return fd.sys.writev(fd.raw, clampVec(iovs))
}

// WriteAt issues a single pwrite(2) at the given absolute offset,
// independent of the implicit file position.
func (fd *FD) WriteAt(p []byte, offset int64) (int, error) {
	if fd.raw < 0 {
		return 0, unix.EBADF
	}

	return fd.sys.pwrite(fd.raw, clampRW(p), offset)
}
