package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edgevec/edgevec/internal/everr"
	"gopkg.in/yaml.v3"
)

// Metric names spec §6's index configuration recognizes.
const (
	MetricL2     = "l2"
	MetricCosine = "cosine"
	MetricDot    = "dot"
	MetricHamming = "hamming"
)

// VectorType names spec §6 recognizes.
const (
	VectorTypeFloat32 = "float32"
	VectorTypeBinary  = "binary"
)

// IndexType names spec §6 recognizes.
const (
	IndexTypeHNSW = "hnsw"
	IndexTypeFlat = "flat"
)

// defaultSeed is the fixed reproducibility constant spec §6 requires as
// the seed default, chosen arbitrarily and held stable across releases.
const defaultSeed uint64 = 0xE3DC9A17C2B5F001

// IndexConfig is spec §6's index configuration object: dimensions,
// metric, vector/index type, HNSW construction parameters, and seed.
// LoadIndexConfig builds it in layers: defaults, then an optional YAML
// file, then environment overrides.
type IndexConfig struct {
	Dimensions     uint32 `yaml:"dimensions" json:"dimensions"`
	Metric         string `yaml:"metric" json:"metric"`
	VectorType     string `yaml:"vector_type" json:"vector_type"`
	IndexType      string `yaml:"index_type" json:"index_type"`
	M              uint8  `yaml:"m" json:"m"`
	M0             uint8  `yaml:"m0" json:"m0"`
	EfConstruction uint16 `yaml:"ef_construction" json:"ef_construction"`
	EfSearch       uint16 `yaml:"ef_search" json:"ef_search"`
	Seed           uint64 `yaml:"seed" json:"seed"`
}

// NewIndexConfig returns spec §6's defaults: metric l2, vector_type
// float32, index_type hnsw, m=16, m0=2m, ef_construction=200,
// ef_search=50, a fixed seed. Dimensions has no default — it is
// required and validated by Validate.
func NewIndexConfig() *IndexConfig {
	return &IndexConfig{
		Metric:         MetricL2,
		VectorType:     VectorTypeFloat32,
		IndexType:      IndexTypeHNSW,
		M:              16,
		M0:             32,
		EfConstruction: 200,
		EfSearch:       50,
		Seed:           defaultSeed,
	}
}

// LoadIndexConfig builds an IndexConfig from defaults, then an optional .edgevec.yaml/.edgevec.yml in dir, then
// EDGEVEC_-prefixed environment overrides, then validation.
func LoadIndexConfig(dir string) (*IndexConfig, error) {
	cfg := NewIndexConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *IndexConfig) loadFromFile(dir string) error {
	for _, name := range []string{".edgevec.yaml", ".edgevec.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return everr.Wrap(everr.CodeInvalidConfig, err)
		}
		var parsed IndexConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return everr.Wrap(everr.CodeInvalidConfig, err)
		}
		c.mergeWith(&parsed)
		return nil
	}
	return nil
}

// mergeWith overlays non-zero fields of other onto c; zero fields in
// other leave c unchanged.
func (c *IndexConfig) mergeWith(other *IndexConfig) {
	if other.Dimensions != 0 {
		c.Dimensions = other.Dimensions
	}
	if other.Metric != "" {
		c.Metric = other.Metric
	}
	if other.VectorType != "" {
		c.VectorType = other.VectorType
	}
	if other.IndexType != "" {
		c.IndexType = other.IndexType
	}
	if other.M != 0 {
		c.M = other.M
	}
	if other.M0 != 0 {
		c.M0 = other.M0
	}
	if other.EfConstruction != 0 {
		c.EfConstruction = other.EfConstruction
	}
	if other.EfSearch != 0 {
		c.EfSearch = other.EfSearch
	}
	if other.Seed != 0 {
		c.Seed = other.Seed
	}
}

// applyEnvOverrides applies EDGEVEC_*-prefixed environment variables,
// the highest-precedence layer.
func (c *IndexConfig) applyEnvOverrides() {
	if v := os.Getenv("EDGEVEC_DIMENSIONS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			c.Dimensions = uint32(n)
		}
	}
	if v := os.Getenv("EDGEVEC_METRIC"); v != "" {
		c.Metric = strings.ToLower(v)
	}
	if v := os.Getenv("EDGEVEC_VECTOR_TYPE"); v != "" {
		c.VectorType = strings.ToLower(v)
	}
	if v := os.Getenv("EDGEVEC_INDEX_TYPE"); v != "" {
		c.IndexType = strings.ToLower(v)
	}
	if v := os.Getenv("EDGEVEC_EF_SEARCH"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			c.EfSearch = uint16(n)
		}
	}
	if v := os.Getenv("EDGEVEC_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Seed = n
		}
	}
}

var validMetrics = map[string]bool{MetricL2: true, MetricCosine: true, MetricDot: true, MetricHamming: true}
var validVectorTypes = map[string]bool{VectorTypeFloat32: true, VectorTypeBinary: true}
var validIndexTypes = map[string]bool{IndexTypeHNSW: true, IndexTypeFlat: true}

// Validate enforces spec §6's bounds and the Binary/hamming coupling
// rule (Binary vectors require metric=hamming and dim%8==0).
func (c *IndexConfig) Validate() error {
	if c.Dimensions < 1 || c.Dimensions > 65535 {
		return everr.New(everr.CodeInvalidConfig, fmt.Sprintf("dimensions must be 1..=65535, got %d", c.Dimensions), nil)
	}
	if !validMetrics[c.Metric] {
		return everr.New(everr.CodeInvalidConfig, fmt.Sprintf("metric must be l2|cosine|dot|hamming, got %q", c.Metric), nil)
	}
	if !validVectorTypes[c.VectorType] {
		return everr.New(everr.CodeInvalidConfig, fmt.Sprintf("vector_type must be float32|binary, got %q", c.VectorType), nil)
	}
	if !validIndexTypes[c.IndexType] {
		return everr.New(everr.CodeInvalidConfig, fmt.Sprintf("index_type must be hnsw|flat, got %q", c.IndexType), nil)
	}
	if c.VectorType == VectorTypeBinary {
		if c.Metric != MetricHamming {
			return everr.New(everr.CodeInvalidConfig, "binary vector_type requires metric=hamming", nil)
		}
		if c.Dimensions%8 != 0 {
			return everr.New(everr.CodeInvalidConfig, fmt.Sprintf("binary vector_type requires dim%%8==0, got %d", c.Dimensions), nil)
		}
	}
	if c.M < 2 || c.M > 64 {
		return everr.New(everr.CodeInvalidConfig, fmt.Sprintf("m must be 2..=64, got %d", c.M), nil)
	}
	if c.M0 == 0 {
		c.M0 = 2 * uint8(min(int(c.M), 127))
	}
	if uint16(c.EfConstruction) < uint16(c.M) {
		return everr.New(everr.CodeInvalidConfig, fmt.Sprintf("ef_construction must be >= m (%d), got %d", c.M, c.EfConstruction), nil)
	}
	return nil
}
