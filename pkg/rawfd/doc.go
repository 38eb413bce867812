// Package rawfd provides an owning wrapper around a raw Unix file
// descriptor.
//
// rawfd is the foundation layer for code that works at descriptor level
// (pipes, sockets, inherited descriptors) and needs correct ownership,
// error, and close semantics without re-deriving them each time. It does
// not open descriptors itself - callers obtain one elsewhere (os.Pipe,
// unix.Open, socket inheritance) and hand the integer to [New].
//
// # Basic Usage
//
//	fd := rawfd.New(raw)
//	defer fd.Close()
//
//	n, err := fd.Write([]byte("hello"))
//	if err != nil {
//	    // err is the raw unix.Errno from the kernel
//	}
//
// # Ownership
//
// Each descriptor integer must be owned by at most one live [FD]. The
// wrapper closes the descriptor exactly once: either explicitly via
// [FD.Close], or by a finalizer if the FD is garbage collected while
// still armed. [FD.Release] extracts the integer and disarms the
// wrapper, transferring ownership back to the caller. After Close or
// Release, every operation on the wrapper fails with unix.EBADF.
//
// Duplicating ownership is explicit: [FD.Dup] allocates a new
// descriptor number referring to the same open file description, with
// close-on-exec guaranteed set on the result.
//
// # Error Handling
//
// Operations surface the kernel's error untranslated (a unix.Errno, or
// nil). EINTR never reaches callers: every syscall is retried
// transparently on interruption. Close discards the kernel's result on
// purpose - after a failed close(2) the descriptor's fate is ambiguous,
// and retrying could close an unrelated descriptor that reused the
// number.
//
// # Concurrency
//
// An FD has no internal locking. Operations issued from a single
// goroutine execute in program order; concurrent use of the same FD is
// subject to whatever the kernel guarantees for that descriptor kind.
// The only process-wide shared state is the dup-with-cloexec capability
// flag, which uses atomics and needs no coordination.
package rawfd
