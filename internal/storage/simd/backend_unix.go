//go:build linux || darwin

package simd

import (
	"runtime"

	"github.com/ebitengine/purego"
)

// candidateLibs lists shared objects that export a BLAS-style cblas_sdot
// symbol, in preference order. EdgeVec never links against them at build
// time (no cgo, no static link) — it only dlopens whichever one is present
// on the host at runtime, which is exactly the freedom purego exists to
// provide for a pure-Go binary running in a constrained/edge process.
func candidateLibs() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"/usr/lib/libSystem.B.dylib"}
	case "linux":
		return []string{
			"libopenblas.so.0",
			"libcblas.so.3",
			"libblas.so.3",
		}
	default:
		return nil
	}
}

// selectBackend attempts to dlopen a native BLAS and bind cblas_sdot. If
// no candidate library opens or none exports the symbol, it falls back to
// the scalar kernel; EdgeVec never fails to start because a native
// backend wasn't found.
func selectBackend() (Backend, func(a, b []float32) float32) {
	for _, lib := range candidateLibs() {
		handle, err := purego.Dlopen(lib, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			continue
		}

		var cblasSdot func(n int32, x []float32, incx int32, y []float32, incy int32) float32
		func() {
			defer func() { recover() }() // RegisterLibFunc panics if the symbol is absent
			purego.RegisterLibFunc(&cblasSdot, handle, "cblas_sdot")
		}()
		if cblasSdot == nil {
			continue
		}

		dot := func(a, b []float32) float32 {
			if len(a) == 0 {
				return 0
			}
			return cblasSdot(int32(len(a)), a, 1, b, 1)
		}
		return BackendNative, dot
	}
	return BackendScalar, nil
}
