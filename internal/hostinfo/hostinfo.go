// Package hostinfo reports host CPU and memory properties used for device
// naming and the devices listing.
package hostinfo

import "golang.org/x/sys/cpu"

// CPUFeatures returns the SIMD feature set of the host CPU, most capable
// first. Empty on architectures without detection support.
func CPUFeatures() []string {
	var feats []string
	if cpu.X86.HasAVX512F {
		feats = append(feats, "avx512")
	}
	if cpu.X86.HasAVX2 {
		feats = append(feats, "avx2")
	}
	if cpu.X86.HasFMA {
		feats = append(feats, "fma")
	}
	if cpu.X86.HasSSE42 {
		feats = append(feats, "sse4.2")
	}
	if cpu.ARM64.HasSVE {
		feats = append(feats, "sve")
	}
	if cpu.ARM64.HasASIMD {
		feats = append(feats, "neon")
	}
	return feats
}
