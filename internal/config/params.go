package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical extraction defaults file.
// This is the single source of truth for all default extraction values.
const DefaultConfigPath = "config/extraction.defaults.json"

// ExtractionConfig represents the root configuration for the tower-extraction
// pipeline. Fields are pointers so a JSON file may override any subset while
// the rest fall back to compiled defaults (see the Get accessors).
type ExtractionConfig struct {
	// Preset optionally names a baseline parameter set applied before the
	// explicit fields in this file. See PresetNames for valid values.
	Preset string `json:"preset,omitempty"`

	// Height filter params
	HeightOffset    *float64 `json:"height_offset,omitempty"`
	FallbackOffset  *float64 `json:"fallback_offset,omitempty"`
	MinViablePoints *int     `json:"min_viable_points,omitempty"`

	// Clustering params
	Eps       *float64 `json:"eps,omitempty"`
	MinPoints *int     `json:"min_points,omitempty"`
	ChunkSize *int     `json:"chunk_size,omitempty"`
	Workers   *int     `json:"workers,omitempty"`

	// Shape classification params
	AspectRatioThreshold *float64 `json:"aspect_ratio_threshold,omitempty"`
	MinHeight            *float64 `json:"min_height,omitempty"`
	MinWidth             *float64 `json:"min_width,omitempty"`
	MaxWidth             *float64 `json:"max_width,omitempty"`

	// Duplicate suppression params
	DuplicateThreshold *float64 `json:"duplicate_threshold,omitempty"`
	StrictThreshold    *float64 `json:"strict_threshold,omitempty"`
	ReplaceWithin      *bool    `json:"replace_within,omitempty"`

	// Pre-processing params
	VoxelSize *float64 `json:"voxel_size,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyExtractionConfig returns an ExtractionConfig with all fields set to nil.
// The Get accessors resolve nil fields to compiled defaults.
func EmptyExtractionConfig() *ExtractionConfig {
	return &ExtractionConfig{}
}

// DefaultExtractionConfig returns a config with every field explicitly set to
// its compiled default. Used to author the defaults file and by tests.
func DefaultExtractionConfig() *ExtractionConfig {
	return &ExtractionConfig{
		HeightOffset:         ptrFloat64(3.0),
		FallbackOffset:       ptrFloat64(1.0),
		MinViablePoints:      ptrInt(1000),
		Eps:                  ptrFloat64(8.0),
		MinPoints:            ptrInt(80),
		ChunkSize:            ptrInt(50000),
		Workers:              ptrInt(1),
		AspectRatioThreshold: ptrFloat64(0.8),
		MinHeight:            ptrFloat64(15.0),
		MinWidth:             ptrFloat64(8.0),
		MaxWidth:             ptrFloat64(50.0),
		DuplicateThreshold:   ptrFloat64(25.0),
		StrictThreshold:      ptrFloat64(2.0),
		ReplaceWithin:        ptrBool(false),
		VoxelSize:            ptrFloat64(0),
	}
}

// PresetNames lists the built-in parameter presets, in documentation order.
//
//	default       compiled defaults, dense corridor survey clouds
//	sparse        thinner clouds: tighter eps, lower density, narrower towers
//	strict-dedupe re-detection runs: wide duplicate radius, quality replacement
//	wide-corridor parallel-circuit corridors where towers sit close together
func PresetNames() []string {
	return []string{"default", "sparse", "strict-dedupe", "wide-corridor"}
}

// PresetConfig returns the named preset as a partial config (only the fields
// the preset changes are set). Unknown names are an error.
func PresetConfig(name string) (*ExtractionConfig, error) {
	switch name {
	case "", "default":
		return EmptyExtractionConfig(), nil
	case "sparse":
		return &ExtractionConfig{
			Eps:                  ptrFloat64(3.5),
			MinPoints:            ptrInt(50),
			AspectRatioThreshold: ptrFloat64(2.0),
			MinWidth:             ptrFloat64(5.0),
			MaxWidth:             ptrFloat64(40.0),
		}, nil
	case "strict-dedupe":
		return &ExtractionConfig{
			DuplicateThreshold: ptrFloat64(30.0),
			ReplaceWithin:      ptrBool(true),
		}, nil
	case "wide-corridor":
		return &ExtractionConfig{
			DuplicateThreshold: ptrFloat64(10.0),
		}, nil
	default:
		return nil, fmt.Errorf("unknown preset %q (valid: %v)", name, PresetNames())
	}
}

// merge returns base with every non-nil field of override applied on top.
func merge(base, override *ExtractionConfig) *ExtractionConfig {
	out := *base
	if override.HeightOffset != nil {
		out.HeightOffset = override.HeightOffset
	}
	if override.FallbackOffset != nil {
		out.FallbackOffset = override.FallbackOffset
	}
	if override.MinViablePoints != nil {
		out.MinViablePoints = override.MinViablePoints
	}
	if override.Eps != nil {
		out.Eps = override.Eps
	}
	if override.MinPoints != nil {
		out.MinPoints = override.MinPoints
	}
	if override.ChunkSize != nil {
		out.ChunkSize = override.ChunkSize
	}
	if override.Workers != nil {
		out.Workers = override.Workers
	}
	if override.AspectRatioThreshold != nil {
		out.AspectRatioThreshold = override.AspectRatioThreshold
	}
	if override.MinHeight != nil {
		out.MinHeight = override.MinHeight
	}
	if override.MinWidth != nil {
		out.MinWidth = override.MinWidth
	}
	if override.MaxWidth != nil {
		out.MaxWidth = override.MaxWidth
	}
	if override.DuplicateThreshold != nil {
		out.DuplicateThreshold = override.DuplicateThreshold
	}
	if override.StrictThreshold != nil {
		out.StrictThreshold = override.StrictThreshold
	}
	if override.ReplaceWithin != nil {
		out.ReplaceWithin = override.ReplaceWithin
	}
	if override.VoxelSize != nil {
		out.VoxelSize = override.VoxelSize
	}
	return &out
}

// LoadExtractionConfig loads an ExtractionConfig from a JSON file.
// The file is validated to have a .json extension and be under the max file
// size. If the file names a preset, the preset's values are applied first and
// the file's explicit fields override them. Fields absent from both keep their
// compiled defaults, so partial configs are safe.
func LoadExtractionConfig(path string) (*ExtractionConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyExtractionConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if cfg.Preset != "" {
		base, err := PresetConfig(cfg.Preset)
		if err != nil {
			return nil, err
		}
		merged := merge(base, cfg)
		merged.Preset = cfg.Preset
		cfg = merged
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical extraction defaults from
// DefaultConfigPath. It searches the current directory and common parent
// directories. Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *ExtractionConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadExtractionConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are consistent. Range checks
// apply to resolved values so a preset plus overrides is validated as a whole.
func (c *ExtractionConfig) Validate() error {
	if c.Eps != nil && *c.Eps <= 0 {
		return fmt.Errorf("eps must be positive, got %f", *c.Eps)
	}
	if c.MinPoints != nil && *c.MinPoints < 1 {
		return fmt.Errorf("min_points must be at least 1, got %d", *c.MinPoints)
	}
	if c.ChunkSize != nil && *c.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be at least 1, got %d", *c.ChunkSize)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.AspectRatioThreshold != nil && *c.AspectRatioThreshold <= 0 {
		return fmt.Errorf("aspect_ratio_threshold must be positive, got %f", *c.AspectRatioThreshold)
	}
	if c.MinHeight != nil && *c.MinHeight <= 0 {
		return fmt.Errorf("min_height must be positive, got %f", *c.MinHeight)
	}
	if c.MinWidth != nil && *c.MinWidth < 0 {
		return fmt.Errorf("min_width must be non-negative, got %f", *c.MinWidth)
	}
	if c.GetMaxWidth() <= c.GetMinWidth() {
		return fmt.Errorf("max_width (%f) must exceed min_width (%f)", c.GetMaxWidth(), c.GetMinWidth())
	}
	if c.DuplicateThreshold != nil && *c.DuplicateThreshold < 0 {
		return fmt.Errorf("duplicate_threshold must be non-negative, got %f", *c.DuplicateThreshold)
	}
	if c.StrictThreshold != nil && *c.StrictThreshold < 0 {
		return fmt.Errorf("strict_threshold must be non-negative, got %f", *c.StrictThreshold)
	}
	if c.GetReplaceWithin() && c.GetStrictThreshold() > c.GetDuplicateThreshold() {
		return fmt.Errorf("strict_threshold (%f) must not exceed duplicate_threshold (%f) when replace_within is set",
			c.GetStrictThreshold(), c.GetDuplicateThreshold())
	}
	if c.HeightOffset != nil && *c.HeightOffset < 0 {
		return fmt.Errorf("height_offset must be non-negative, got %f", *c.HeightOffset)
	}
	if c.FallbackOffset != nil && *c.FallbackOffset < 0 {
		return fmt.Errorf("fallback_offset must be non-negative, got %f", *c.FallbackOffset)
	}
	if c.MinViablePoints != nil && *c.MinViablePoints < 0 {
		return fmt.Errorf("min_viable_points must be non-negative, got %d", *c.MinViablePoints)
	}
	if c.VoxelSize != nil && *c.VoxelSize < 0 {
		return fmt.Errorf("voxel_size must be non-negative, got %f", *c.VoxelSize)
	}
	return nil
}

// GetHeightOffset returns the height_offset value or the default.
func (c *ExtractionConfig) GetHeightOffset() float64 {
	if c.HeightOffset == nil {
		return 3.0 // default
	}
	return *c.HeightOffset
}

// GetFallbackOffset returns the fallback_offset value or the default.
func (c *ExtractionConfig) GetFallbackOffset() float64 {
	if c.FallbackOffset == nil {
		return 1.0 // default
	}
	return *c.FallbackOffset
}

// GetMinViablePoints returns the min_viable_points value or the default.
func (c *ExtractionConfig) GetMinViablePoints() int {
	if c.MinViablePoints == nil {
		return 1000 // default
	}
	return *c.MinViablePoints
}

// GetEps returns the eps value or the default.
func (c *ExtractionConfig) GetEps() float64 {
	if c.Eps == nil {
		return 8.0 // default
	}
	return *c.Eps
}

// GetMinPoints returns the min_points value or the default.
func (c *ExtractionConfig) GetMinPoints() int {
	if c.MinPoints == nil {
		return 80 // default
	}
	return *c.MinPoints
}

// GetChunkSize returns the chunk_size value or the default.
func (c *ExtractionConfig) GetChunkSize() int {
	if c.ChunkSize == nil {
		return 50000 // default
	}
	return *c.ChunkSize
}

// GetWorkers returns the workers value or the default.
func (c *ExtractionConfig) GetWorkers() int {
	if c.Workers == nil {
		return 1 // default: sequential reference behaviour
	}
	return *c.Workers
}

// GetAspectRatioThreshold returns the aspect_ratio_threshold value or the default.
func (c *ExtractionConfig) GetAspectRatioThreshold() float64 {
	if c.AspectRatioThreshold == nil {
		return 0.8 // default
	}
	return *c.AspectRatioThreshold
}

// GetMinHeight returns the min_height value or the default.
func (c *ExtractionConfig) GetMinHeight() float64 {
	if c.MinHeight == nil {
		return 15.0 // default
	}
	return *c.MinHeight
}

// GetMinWidth returns the min_width value or the default.
func (c *ExtractionConfig) GetMinWidth() float64 {
	if c.MinWidth == nil {
		return 8.0 // default
	}
	return *c.MinWidth
}

// GetMaxWidth returns the max_width value or the default.
func (c *ExtractionConfig) GetMaxWidth() float64 {
	if c.MaxWidth == nil {
		return 50.0 // default
	}
	return *c.MaxWidth
}

// GetDuplicateThreshold returns the duplicate_threshold value or the default.
func (c *ExtractionConfig) GetDuplicateThreshold() float64 {
	if c.DuplicateThreshold == nil {
		return 25.0 // default
	}
	return *c.DuplicateThreshold
}

// GetStrictThreshold returns the strict_threshold value or the default.
func (c *ExtractionConfig) GetStrictThreshold() float64 {
	if c.StrictThreshold == nil {
		return 2.0 // default
	}
	return *c.StrictThreshold
}

// GetReplaceWithin returns the replace_within value or the default.
func (c *ExtractionConfig) GetReplaceWithin() bool {
	if c.ReplaceWithin == nil {
		return false // default: first-accepted wins
	}
	return *c.ReplaceWithin
}

// GetVoxelSize returns the voxel_size value or the default (0 disables
// downsampling).
func (c *ExtractionConfig) GetVoxelSize() float64 {
	if c.VoxelSize == nil {
		return 0 // default: no downsampling
	}
	return *c.VoxelSize
}
