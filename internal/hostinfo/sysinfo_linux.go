//go:build linux

package hostinfo

import "golang.org/x/sys/unix"

// TotalMemoryBytes returns the host's physical memory size, or 0 when it
// cannot be determined.
func TotalMemoryBytes() uint64 {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return 0
	}
	return uint64(si.Totalram) * uint64(si.Unit)
}
