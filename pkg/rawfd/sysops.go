//go:build linux

package rawfd

import (
	"errors"

	"golang.org/x/sys/unix"
)

// sysops is the syscall-invocation table behind every [FD] operation.
//
// Production FDs use [defaultSys], which issues the real syscalls via
// golang.org/x/sys/unix and retries EINTR transparently, so FD methods
// only ever see a final outcome. Tests substitute a counting fake to
// verify syscall-level behavior without touching real descriptors.
type sysops struct {
	read        func(fd int, p []byte) (int, error)
	readv       func(fd int, iovs [][]byte) (int, error)
	pread       func(fd int, p []byte, offset int64) (int, error)
	write       func(fd int, p []byte) (int, error)
	writev      func(fd int, iovs [][]byte) (int, error)
	pwrite      func(fd int, p []byte, offset int64) (int, error)
	fcntl       func(fd int, cmd int, arg int) (int, error)
	dup         func(fd int) (int, error)
	setNonblock func(fd int, nonblocking bool) error
	close       func(fd int) error
}

// defaultSys is shared by every FD built with [New].
//
// close is deliberately not wrapped in retryEINTR: after a failed
// close(2) the descriptor may already be gone and its number reused, so
// retrying could close an unrelated descriptor.
var defaultSys = &sysops{
	read: func(fd int, p []byte) (int, error) {
		return retryEINTRCount(func() (int, error) { return unix.Read(fd, p) })
	},
	readv: func(fd int, iovs [][]byte) (int, error) {
		return retryEINTRCount(func() (int, error) { return unix.Readv(fd, iovs) })
	},
	pread: func(fd int, p []byte, offset int64) (int, error) {
		return retryEINTRCount(func() (int, error) { return unix.Pread(fd, p, offset) })
	},
	write: func(fd int, p []byte) (int, error) {
		return retryEINTRCount(func() (int, error) { return unix.Write(fd, p) })
	},
	writev: func(fd int, iovs [][]byte) (int, error) {
		return retryEINTRCount(func() (int, error) { return unix.Writev(fd, iovs) })
	},
	pwrite: func(fd int, p []byte, offset int64) (int, error) {
		return retryEINTRCount(func() (int, error) { return unix.Pwrite(fd, p, offset) })
	},
	fcntl: func(fd int, cmd int, arg int) (int, error) {
		return retryEINTRCount(func() (int, error) { return unix.FcntlInt(uintptr(fd), cmd, arg) })
	},
	dup: func(fd int) (int, error) {
		return retryEINTRCount(func() (int, error) { return unix.Dup(fd) })
	},
	setNonblock: func(fd int, nonblocking bool) error {
		return retryEINTR(func() error { return unix.SetNonblock(fd, nonblocking) })
	},
	close: unix.Close,
}

// maxEINTRRetries bounds the retry loop so a pathological kernel cannot
// spin us forever. In practice one or two iterations suffice.
const maxEINTRRetries = 10000

func retryEINTR(op func() error) error {
	var err error
	for i := 0; i < maxEINTRRetries; i++ {
		err = op()
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}

func retryEINTRCount(op func() (int, error)) (int, error) {
	var (
		n   int
		err error
	)

	for i := 0; i < maxEINTRRetries; i++ {
		n, err = op()
		if err == nil || !errors.Is(err, unix.EINTR) {
			return n, err
		}
	}

	return n, err
}
