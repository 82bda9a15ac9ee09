package kernel

import (
	"os"
	"strings"
)

// Package-level capability state, set once by platform-specific init
// functions before any dispatch happens (mirrors the teacher's
// internal/simd/capability.go: "Go guarantees init() runs before any
// other code", so no mutex is needed for these flags).
var (
	hasAVX2    bool
	hasAVX512  bool
	hasOverride bool
	override   string
)

func init() {
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("VECLIFECYCLE_KERNEL"))); v != "" {
		hasOverride = true
		override = v
	}
}

// HasAVX2 reports whether the 8-wide float32 kernels are eligible.
func HasAVX2() bool {
	if hasOverride {
		return override == "avx2" || override == "avx512"
	}
	return hasAVX2
}

// HasAVX512 reports whether the 16-wide float32 kernels are eligible.
func HasAVX512() bool {
	if hasOverride {
		return override == "avx512"
	}
	return hasAVX512
}
