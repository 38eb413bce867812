//go:build linux

package rawfd

import "golang.org/x/sys/unix"

// CloseOnExec reports whether the descriptor's close-on-exec flag is
// currently set.
func (fd *FD) CloseOnExec() (bool, error) {
	if fd.raw < 0 {
		return false, unix.EBADF
	}

	flags, err := fd.sys.fcntl(fd.raw, unix.F_GETFD, 0)
	if err != nil {
		return false, err
	}

	return flags&unix.FD_CLOEXEC != 0, nil
}

// SetCloseOnExec ensures the close-on-exec flag is set.
//
// It reads the current flags first and only issues the mutating F_SETFD
// when the flag is absent, so repeated calls cost a single fcntl each.
func (fd *FD) SetCloseOnExec() error {
	if fd.raw < 0 {
		return unix.EBADF
	}

	flags, err := fd.sys.fcntl(fd.raw, unix.F_GETFD, 0)
	if err != nil {
		return err
	}

	if flags&unix.FD_CLOEXEC != 0 {
		return nil
	}

	_, err = fd.sys.fcntl(fd.raw, unix.F_SETFD, flags|unix.FD_CLOEXEC)

	return err
}

// SetNonblock toggles the descriptor's non-blocking mode.
//
// Blocking mode is a property of the open file description, not of this
// wrapper: it is shared with any descriptor duplicated from this one.
func (fd *FD) SetNonblock(nonblocking bool) error {
	if fd.raw < 0 {
		return unix.EBADF
	}

	return fd.sys.setNonblock(fd.raw, nonblocking)
}
