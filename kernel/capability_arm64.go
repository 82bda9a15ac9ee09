//go:build arm64

package kernel

import "golang.org/x/sys/cpu"

// ARM64 NEON is treated as the AVX2-equivalent 8-wide tier; there is
// no 16-wide tier on this architecture in this dispatch table.
func init() {
	hasAVX2 = cpu.ARM64.HasASIMD
	hasAVX512 = false
}
