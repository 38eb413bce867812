//go:build linux

package rawfd

import (
	"errors"
	"testing"

	"golang.org/x/sys/unix"
)

// =============================================================================
// Syscall-level tests
//
// These tests substitute a counting fake for the syscall table to verify
// WHICH syscalls an FD issues, with what arguments, and how often. They
// never touch real descriptors. Kernel-facing behavior is covered by the
// real-descriptor tests in fd_test.go.
// =============================================================================

// sysRecorder is a fake syscall table that records every invocation and
// simulates a minimal descriptor: a flag word for F_GETFD/F_SETFD, a
// canned read payload, and a counter handing out new descriptor numbers
// for dup-style calls.
type sysRecorder struct {
	fdFlags int // simulated F_GETFD flag word

	readData []byte // payload returned by the next read/pread

	getfdCalls  int
	setfdCalls  int
	dupfdCalls  int // F_DUPFD_CLOEXEC attempts
	dupCalls    int // plain dup(2)
	readCalls   int
	preadCalls  int
	writeCalls  int
	pwriteCalls int
	readvCalls  int
	writevCalls int
	closeCalls  int

	lastPreadOffset  int64
	lastPwriteOffset int64
	lastWritten      []byte
	lastVecLens      []int
	closedFDs        []int

	dupfdErr error // forced result of F_DUPFD_CLOEXEC, nil means success
	nextFD   int   // next descriptor number handed out by dup paths
}

func (r *sysRecorder) ops() *sysops {
	return &sysops{
		read: func(_ int, p []byte) (int, error) {
			r.readCalls++
			n := copy(p, r.readData)
			r.readData = r.readData[n:]

			return n, nil
		},
		readv: func(_ int, iovs [][]byte) (int, error) {
			r.readvCalls++
			r.lastVecLens = vecLens(iovs)

			total := 0
			for _, p := range iovs {
				n := copy(p, r.readData)
				r.readData = r.readData[n:]
				total += n
			}

			return total, nil
		},
		pread: func(_ int, p []byte, offset int64) (int, error) {
			r.preadCalls++
			r.lastPreadOffset = offset

			return copy(p, r.readData), nil
		},
		write: func(_ int, p []byte) (int, error) {
			r.writeCalls++
			r.lastWritten = append([]byte(nil), p...)

			return len(p), nil
		},
		writev: func(_ int, iovs [][]byte) (int, error) {
			r.writevCalls++
			r.lastVecLens = vecLens(iovs)

			total := 0

			r.lastWritten = nil
			for _, p := range iovs {
				r.lastWritten = append(r.lastWritten, p...)
				total += len(p)
			}

			return total, nil
		},
		pwrite: func(_ int, p []byte, offset int64) (int, error) {
			r.pwriteCalls++
			r.lastPwriteOffset = offset
			r.lastWritten = append([]byte(nil), p...)

			return len(p), nil
		},
		fcntl: func(_ int, cmd int, arg int) (int, error) {
			switch cmd {
			case unix.F_GETFD:
				r.getfdCalls++

				return r.fdFlags, nil
			case unix.F_SETFD:
				r.setfdCalls++
				r.fdFlags = arg

				return 0, nil
			case unix.F_DUPFD_CLOEXEC:
				r.dupfdCalls++
				if r.dupfdErr != nil {
					return 0, r.dupfdErr
				}

				r.nextFD++

				return r.nextFD, nil
			}

			return 0, unix.EINVAL
		},
		dup: func(_ int) (int, error) {
			r.dupCalls++
			r.nextFD++

			return r.nextFD, nil
		},
		setNonblock: func(_ int, _ bool) error {
			return nil
		},
		close: func(fd int) error {
			r.closeCalls++
			r.closedFDs = append(r.closedFDs, fd)

			return nil
		},
	}
}

func vecLens(iovs [][]byte) []int {
	lens := make([]int, 0, len(iovs))
	for _, p := range iovs {
		lens = append(lens, len(p))
	}

	return lens
}

// resetDupCapability restores the process-wide capability flag after a
// test has downgraded it.
func resetDupCapability(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { dupCloexecUnsupported.Store(false) })
}

// -----------------------------------------------------------------------------
// Write / positional I/O scenarios
// -----------------------------------------------------------------------------

func TestFD_Write_IssuesSingleWriteWithExactBytes(t *testing.T) {
	rec := &sysRecorder{}
	fd := newFD(7, rec.ops())
	defer fd.Release()

	n, err := fd.Write([]byte{0x41, 0x42})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	if got, want := n, 2; got != want {
		t.Fatalf("n=%d, want=%d", got, want)
	}

	if got, want := rec.writeCalls, 1; got != want {
		t.Fatalf("write calls=%d, want=%d", got, want)
	}

	if got, want := string(rec.lastWritten), "AB"; got != want {
		t.Fatalf("written=%q, want=%q", got, want)
	}
}

func TestFD_ReadAt_IssuesSinglePreadAtOffset(t *testing.T) {
	rec := &sysRecorder{readData: []byte("xyz")}
	fd := newFD(7, rec.ops())
	defer fd.Release()

	buf := make([]byte, 3)

	n, err := fd.ReadAt(buf, 100)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}

	if got, want := n, 3; got != want {
		t.Fatalf("n=%d, want=%d", got, want)
	}

	if got, want := rec.preadCalls, 1; got != want {
		t.Fatalf("pread calls=%d, want=%d", got, want)
	}

	if got, want := rec.lastPreadOffset, int64(100); got != want {
		t.Fatalf("offset=%d, want=%d", got, want)
	}

	// Positional reads must not touch the plain read path.
	if got, want := rec.readCalls, 0; got != want {
		t.Fatalf("read calls=%d, want=%d", got, want)
	}
}

func TestFD_WriteAt_IssuesSinglePwriteAtOffset(t *testing.T) {
	rec := &sysRecorder{}
	fd := newFD(7, rec.ops())
	defer fd.Release()

	n, err := fd.WriteAt([]byte("hi"), 64)
	if err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	if got, want := n, 2; got != want {
		t.Fatalf("n=%d, want=%d", got, want)
	}

	if got, want := rec.pwriteCalls, 1; got != want {
		t.Fatalf("pwrite calls=%d, want=%d", got, want)
	}

	if got, want := rec.lastPwriteOffset, int64(64); got != want {
		t.Fatalf("offset=%d, want=%d", got, want)
	}

	if got, want := rec.writeCalls, 0; got != want {
		t.Fatalf("write calls=%d, want=%d", got, want)
	}
}

func TestFD_ReadToEnd_AppendsEverythingUntilEOF(t *testing.T) {
	rec := &sysRecorder{readData: []byte("hello world")}
	fd := newFD(7, rec.ops())
	defer fd.Release()

	buf := []byte("prefix:")

	n, err := fd.ReadToEnd(&buf)
	if err != nil {
		t.Fatalf("ReadToEnd: %v", err)
	}

	if got, want := n, len("hello world"); got != want {
		t.Fatalf("n=%d, want=%d", got, want)
	}

	if got, want := string(buf), "prefix:hello world"; got != want {
		t.Fatalf("buf=%q, want=%q", got, want)
	}
}

// -----------------------------------------------------------------------------
// Vectored I/O clamping
// -----------------------------------------------------------------------------

func TestFD_WriteVectored_ClampsVectorCount(t *testing.T) {
	rec := &sysRecorder{}
	fd := newFD(7, rec.ops())
	defer fd.Release()

	iovs := make([][]byte, maxVec+50)
	for i := range iovs {
		iovs[i] = []byte{byte(i)}
	}

	if _, err := fd.WriteVectored(iovs); err != nil {
		t.Fatalf("WriteVectored: %v", err)
	}

	if got, want := len(rec.lastVecLens), maxVec; got != want {
		t.Fatalf("vector count=%d, want=%d", got, want)
	}
}

func TestFD_ReadVectored_FillsBuffersInOrder(t *testing.T) {
	rec := &sysRecorder{readData: []byte("abcdef")}
	fd := newFD(7, rec.ops())
	defer fd.Release()

	first := make([]byte, 2)
	second := make([]byte, 4)

	n, err := fd.ReadVectored([][]byte{first, second})
	if err != nil {
		t.Fatalf("ReadVectored: %v", err)
	}

	if got, want := n, 6; got != want {
		t.Fatalf("n=%d, want=%d", got, want)
	}

	if got, want := string(first)+string(second), "abcdef"; got != want {
		t.Fatalf("buffers=%q, want=%q", got, want)
	}

	if got, want := rec.readvCalls, 1; got != want {
		t.Fatalf("readv calls=%d, want=%d", got, want)
	}
}

// -----------------------------------------------------------------------------
// Close-on-exec idempotence
// -----------------------------------------------------------------------------

func TestFD_SetCloseOnExec_SkipsSetfdWhenAlreadySet(t *testing.T) {
	rec := &sysRecorder{fdFlags: unix.FD_CLOEXEC}
	fd := newFD(7, rec.ops())
	defer fd.Release()

	if err := fd.SetCloseOnExec(); err != nil {
		t.Fatalf("SetCloseOnExec: %v", err)
	}

	if got, want := rec.getfdCalls, 1; got != want {
		t.Fatalf("F_GETFD calls=%d, want=%d", got, want)
	}

	if got, want := rec.setfdCalls, 0; got != want {
		t.Fatalf("F_SETFD calls=%d, want=%d", got, want)
	}
}

func TestFD_SetCloseOnExec_Twice_MutatesAtMostOnce(t *testing.T) {
	rec := &sysRecorder{fdFlags: 0}
	fd := newFD(7, rec.ops())
	defer fd.Release()

	if err := fd.SetCloseOnExec(); err != nil {
		t.Fatalf("first SetCloseOnExec: %v", err)
	}

	if err := fd.SetCloseOnExec(); err != nil {
		t.Fatalf("second SetCloseOnExec: %v", err)
	}

	if got, want := rec.setfdCalls, 1; got != want {
		t.Fatalf("F_SETFD calls=%d, want=%d", got, want)
	}

	set, err := fd.CloseOnExec()
	if err != nil {
		t.Fatalf("CloseOnExec: %v", err)
	}

	if got, want := set, true; got != want {
		t.Fatalf("cloexec=%v, want=%v", got, want)
	}
}

// -----------------------------------------------------------------------------
// Dup capability detection
// -----------------------------------------------------------------------------

func TestFD_Dup_AtomicPath_StillSetsCloexecExplicitly(t *testing.T) {
	resetDupCapability(t)

	rec := &sysRecorder{nextFD: 10}
	fd := newFD(7, rec.ops())
	defer fd.Release()

	dup, err := fd.Dup()
	if err != nil {
		t.Fatalf("Dup: %v", err)
	}
	defer dup.Release()

	if got, want := rec.dupfdCalls, 1; got != want {
		t.Fatalf("F_DUPFD_CLOEXEC calls=%d, want=%d", got, want)
	}

	if got := dup.Raw(); got == fd.Raw() {
		t.Fatalf("dup returned the same descriptor number %d", got)
	}

	// The defensive double-check must read the flags even on the atomic
	// path (some kernels reported success without setting the flag).
	if got, want := rec.getfdCalls, 1; got < want {
		t.Fatalf("F_GETFD calls=%d, want>=%d", got, want)
	}

	if got, want := rec.dupCalls, 0; got != want {
		t.Fatalf("plain dup calls=%d, want=%d", got, want)
	}
}

func TestFD_Dup_EINVAL_FallsBackAndDowngradesCapability(t *testing.T) {
	resetDupCapability(t)

	rec := &sysRecorder{nextFD: 10, dupfdErr: unix.EINVAL}
	fd := newFD(7, rec.ops())
	defer fd.Release()

	dup, err := fd.Dup()
	if err != nil {
		t.Fatalf("Dup: %v", err)
	}
	defer dup.Release()

	if got, want := rec.dupfdCalls, 1; got != want {
		t.Fatalf("F_DUPFD_CLOEXEC calls=%d, want=%d", got, want)
	}

	if got, want := rec.dupCalls, 1; got != want {
		t.Fatalf("plain dup calls=%d, want=%d", got, want)
	}

	if got, want := rec.setfdCalls, 1; got != want {
		t.Fatalf("F_SETFD calls=%d, want=%d", got, want)
	}

	if got, want := dupCloexecUnsupported.Load(), true; got != want {
		t.Fatalf("capability downgraded=%v, want=%v", got, want)
	}

	// A second Dup must go straight to the fallback without retrying
	// the atomic variant.
	dup2, err := fd.Dup()
	if err != nil {
		t.Fatalf("second Dup: %v", err)
	}
	defer dup2.Release()

	if got, want := rec.dupfdCalls, 1; got != want {
		t.Fatalf("F_DUPFD_CLOEXEC calls after fallback=%d, want=%d", got, want)
	}

	if got, want := rec.dupCalls, 2; got != want {
		t.Fatalf("plain dup calls=%d, want=%d", got, want)
	}
}

func TestFD_Dup_OtherError_PropagatesWithoutFallback(t *testing.T) {
	resetDupCapability(t)

	rec := &sysRecorder{dupfdErr: unix.EMFILE}
	fd := newFD(7, rec.ops())
	defer fd.Release()

	_, err := fd.Dup()
	if !errors.Is(err, unix.EMFILE) {
		t.Fatalf("err=%v, want=%v", err, unix.EMFILE)
	}

	if got, want := rec.dupCalls, 0; got != want {
		t.Fatalf("plain dup calls=%d, want=%d", got, want)
	}

	if got, want := dupCloexecUnsupported.Load(), false; got != want {
		t.Fatalf("capability downgraded=%v, want=%v", got, want)
	}
}

// -----------------------------------------------------------------------------
// Ownership lifecycle
// -----------------------------------------------------------------------------

func TestFD_Close_ClosesExactlyOnce(t *testing.T) {
	rec := &sysRecorder{}
	fd := newFD(7, rec.ops())

	fd.Close()
	fd.Close()

	if got, want := rec.closeCalls, 1; got != want {
		t.Fatalf("close calls=%d, want=%d", got, want)
	}

	if got, want := rec.closedFDs[0], 7; got != want {
		t.Fatalf("closed fd=%d, want=%d", got, want)
	}
}

func TestFD_Release_SuppressesClose(t *testing.T) {
	rec := &sysRecorder{}
	fd := newFD(7, rec.ops())

	if got, want := fd.Release(), 7; got != want {
		t.Fatalf("Release()=%d, want=%d", got, want)
	}

	fd.Close()

	if got, want := rec.closeCalls, 0; got != want {
		t.Fatalf("close calls=%d, want=%d", got, want)
	}
}

func TestFD_OperationsAfterRelease_ReturnEBADF(t *testing.T) {
	rec := &sysRecorder{}
	fd := newFD(7, rec.ops())
	fd.Release()

	if _, err := fd.Read(make([]byte, 1)); !errors.Is(err, unix.EBADF) {
		t.Fatalf("Read err=%v, want=%v", err, unix.EBADF)
	}

	if _, err := fd.Write([]byte("x")); !errors.Is(err, unix.EBADF) {
		t.Fatalf("Write err=%v, want=%v", err, unix.EBADF)
	}

	if _, err := fd.Dup(); !errors.Is(err, unix.EBADF) {
		t.Fatalf("Dup err=%v, want=%v", err, unix.EBADF)
	}

	if err := fd.SetCloseOnExec(); !errors.Is(err, unix.EBADF) {
		t.Fatalf("SetCloseOnExec err=%v, want=%v", err, unix.EBADF)
	}

	if err := fd.SetNonblock(true); !errors.Is(err, unix.EBADF) {
		t.Fatalf("SetNonblock err=%v, want=%v", err, unix.EBADF)
	}
}

// -----------------------------------------------------------------------------
// EINTR retry helper
// -----------------------------------------------------------------------------

func TestRetryEINTR_RetriesUntilSuccess(t *testing.T) {
	calls := 0

	err := retryEINTR(func() error {
		calls++
		if calls < 3 {
			return unix.EINTR
		}

		return nil
	})
	if err != nil {
		t.Fatalf("retryEINTR: %v", err)
	}

	if got, want := calls, 3; got != want {
		t.Fatalf("calls=%d, want=%d", got, want)
	}
}

func TestRetryEINTRCount_StopsOnHardError(t *testing.T) {
	calls := 0

	_, err := retryEINTRCount(func() (int, error) {
		calls++

		return 0, unix.EBADF
	})
	if !errors.Is(err, unix.EBADF) {
		t.Fatalf("err=%v, want=%v", err, unix.EBADF)
	}

	if got, want := calls, 1; got != want {
		t.Fatalf("calls=%d, want=%d", got, want)
	}
}

func TestClampVec_TruncatesLongVectors(t *testing.T) {
	iovs := make([][]byte, maxVec+1)

	if got, want := len(clampVec(iovs)), maxVec; got != want {
		t.Fatalf("len=%d, want=%d", got, want)
	}

	if got, want := len(clampVec(iovs[:5])), 5; got != want {
		t.Fatalf("len=%d, want=%d", got, want)
	}
}
