//go:build linux

package rawfd

// Per-call clamps applied before entering the kernel.
//
// Count arguments to read/write-style syscalls are signed at the ABI
// level; passing a length near the top of the unsigned range risks
// being reinterpreted as negative. Clamping costs nothing (a short
// transfer is always a legal result) and keeps every call well inside
// the representable range.
const (
	// maxRW is the largest byte count passed to a single read, write,
	// pread, or pwrite. 1 GiB, matching the kernel's own per-call
	// transfer limit.
	maxRW = 1 << 30

	// maxVec is the largest number of iovec entries passed to readv or
	// writev (POSIX IOV_MAX on Linux).
	maxVec = 1024
)

// clampRW truncates p to the maximum single-call transfer size.
func clampRW(p []byte) []byte {
	if len(p) > maxRW {
		return p[:maxRW]
	}

	return p
}

// clampVec truncates an iovec list to the maximum vector count.
func clampVec(iovs [][]byte) [][]byte {
	if len(iovs) > maxVec {
		return iovs[:maxVec]
	}

	return iovs
}
