//go:build !linux

package hostinfo

// TotalMemoryBytes returns 0 on platforms without sysinfo support.
func TotalMemoryBytes() uint64 {
	return 0
}
