//go:build !linux && !darwin

package simd

// selectBackend on platforms without a purego dlopen path (e.g. wasm edge
// workers, windows) always yields the scalar kernel — still the full
// scalar contract of spec §4.1, just without the native speedup.
func selectBackend() (Backend, func(a, b []float32) float32) {
	return BackendScalar, nil
}
