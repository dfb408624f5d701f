package compositor

import (
	"log/slog"

	"github.com/gogpu/compositor/atlas"
	"github.com/gogpu/compositor/glyph"
	"github.com/gogpu/compositor/internal/batch"
	"github.com/gogpu/compositor/internal/gradient"
	"github.com/gogpu/compositor/internal/shader"
)

// Config holds the tunables of a Device. The zero value of every field
// selects its default. The TOML tags let tools load it from a file.
type Config struct {
	// ProgramCapacity is the number of resident shader programs.
	ProgramCapacity int `toml:"program_capacity"`

	// AtlasSize is the dimension of the square image atlas.
	AtlasSize int `toml:"atlas_size"`

	// GlyphAtlasSize is the dimension of each square glyph atlas.
	GlyphAtlasSize int `toml:"glyph_atlas_size"`

	// RampCacheCapacity bounds the gradient ramp cache in texels.
	RampCacheCapacity int `toml:"ramp_cache_capacity"`

	// MaxRampWidth is the widest gradient ramp texture.
	MaxRampWidth int `toml:"max_ramp_width"`

	// IndexCeiling is the index count at which a batch flushes on its own.
	IndexCeiling int `toml:"index_ceiling"`

	// EvictionSeed seeds the atlas eviction choice.
	EvictionSeed uint64 `toml:"eviction_seed"`

	// ShaderSource generates program sources. Nil selects the WGSL
	// generator.
	ShaderSource ShaderSource `toml:"-"`

	// Rasterizer renders glyphs for AddGlyphRun. Without one, glyph runs
	// fail with ErrUnsupported.
	Rasterizer glyph.Rasterizer `toml:"-"`

	// OnImageEvict is notified when the image atlas evicts an allocation.
	OnImageEvict atlas.EvictFunc `toml:"-"`

	// Logger, when non-nil, is installed with SetLogger by NewDevice.
	Logger *slog.Logger `toml:"-"`
}

// DefaultConfig returns the configuration NewDevice uses without options.
func DefaultConfig() Config {
	return Config{
		ProgramCapacity:   shader.DefaultCapacity,
		AtlasSize:         atlas.DefaultAtlasSize,
		GlyphAtlasSize:    atlas.DefaultAtlasSize,
		RampCacheCapacity: gradient.DefaultCapacity,
		MaxRampWidth:      gradient.DefaultMaxWidth,
		IndexCeiling:      batch.DefaultCeiling,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ProgramCapacity <= 0 {
		c.ProgramCapacity = d.ProgramCapacity
	}
	if c.AtlasSize <= 0 {
		c.AtlasSize = d.AtlasSize
	}
	if c.GlyphAtlasSize <= 0 {
		c.GlyphAtlasSize = d.GlyphAtlasSize
	}
	if c.RampCacheCapacity <= 0 {
		c.RampCacheCapacity = d.RampCacheCapacity
	}
	if c.MaxRampWidth <= 0 {
		c.MaxRampWidth = d.MaxRampWidth
	}
	if c.IndexCeiling <= 0 {
		c.IndexCeiling = d.IndexCeiling
	}
	if c.ShaderSource == nil {
		c.ShaderSource = shader.WGSLGenerator{}
	}
	return c
}

// Option configures a Device during creation.
//
// Example:
//
//	dev := compositor.NewDevice(drv,
//		compositor.WithGlyphAtlasSize(1024),
//		compositor.WithIndexCeiling(4096))
type Option func(*Config)

// WithConfig replaces the whole configuration. Options after it still
// apply.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithProgramCapacity sets the number of resident shader programs.
func WithProgramCapacity(n int) Option {
	return func(c *Config) {
		c.ProgramCapacity = n
	}
}

// WithAtlasSize sets the dimension of the image atlas.
func WithAtlasSize(size int) Option {
	return func(c *Config) {
		c.AtlasSize = size
	}
}

// WithGlyphAtlasSize sets the dimension of both glyph atlases.
func WithGlyphAtlasSize(size int) Option {
	return func(c *Config) {
		c.GlyphAtlasSize = size
	}
}

// WithRampCacheCapacity bounds the gradient ramp cache in texels.
func WithRampCacheCapacity(texels int) Option {
	return func(c *Config) {
		c.RampCacheCapacity = texels
	}
}

// WithMaxRampWidth sets the widest gradient ramp. The device texture limit
// still applies.
func WithMaxRampWidth(width int) Option {
	return func(c *Config) {
		c.MaxRampWidth = width
	}
}

// WithIndexCeiling sets the index count at which a batch flushes itself.
func WithIndexCeiling(n int) Option {
	return func(c *Config) {
		c.IndexCeiling = n
	}
}

// WithEvictionSeed seeds the atlas eviction choice, making eviction order
// reproducible.
func WithEvictionSeed(seed uint64) Option {
	return func(c *Config) {
		c.EvictionSeed = seed
	}
}

// WithShaderSource replaces the program source generator.
func WithShaderSource(src ShaderSource) Option {
	return func(c *Config) {
		c.ShaderSource = src
	}
}

// WithLogger installs l with SetLogger when the device is created.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithRasterizer sets the glyph rasterizer used by AddGlyphRun.
func WithRasterizer(r glyph.Rasterizer) Option {
	return func(c *Config) {
		c.Rasterizer = r
	}
}

// WithImageEvict registers fn for evictions from the image atlas.
func WithImageEvict(fn atlas.EvictFunc) Option {
	return func(c *Config) {
		c.OnImageEvict = fn
	}
}
