// Package storage implements EdgeVec's vector arenas (Float and Binary),
// distance kernel dispatch, and binary quantization (spec §4.1, §3).
package storage

import "github.com/edgevec/edgevec/internal/everr"

// MetricKind enumerates the distance metrics spec §3 defines.
type MetricKind uint8

const (
	L2Squared MetricKind = iota
	Cosine
	Dot
	Hamming
)

func (m MetricKind) String() string {
	switch m {
	case L2Squared:
		return "l2"
	case Cosine:
		return "cosine"
	case Dot:
		return "dot"
	case Hamming:
		return "hamming"
	default:
		return "unknown"
	}
}

// ParseMetric maps the §6 wire strings to a MetricKind.
func ParseMetric(s string) (MetricKind, error) {
	switch s {
	case "l2", "":
		return L2Squared, nil
	case "cosine":
		return Cosine, nil
	case "dot":
		return Dot, nil
	case "hamming":
		return Hamming, nil
	default:
		return 0, everr.New(everr.CodeInvalidVector, "unknown metric: "+s, nil)
	}
}

// VectorType enumerates the storage variants of spec §3.
type VectorType uint8

const (
	Float VectorType = iota
	Binary
)

func (t VectorType) String() string {
	if t == Binary {
		return "binary"
	}
	return "float32"
}

// MetricAllowed enforces "Storage variant constrains allowed metrics:
// Float admits L2/Cosine/Dot; Binary admits Hamming only" (spec §3).
func MetricAllowed(t VectorType, m MetricKind) bool {
	if t == Binary {
		return m == Hamming
	}
	return m == L2Squared || m == Cosine || m == Dot
}
