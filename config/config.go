// Package config resolves and validates the cache and timing parameters of a
// simulation run.
//
// Values come from, in increasing priority: built-in defaults, a .env file
// and the process environment, an optional JSON-with-comments file, and
// command-line flags.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/tailscale/hujson"
)

// Defaults used when no other source sets a value.
const (
	DefaultAssociativity  = 1
	DefaultLineByteSize   = 16
	DefaultCacheSizeKB    = 16
	DefaultMissPenalty    = 30
	DefaultDirtyWBPenalty = 2
)

// Environment variables read by ApplyEnv.
const (
	EnvAssociativity  = "CACHESIM_ASSOCIATIVITY"
	EnvLineSize       = "CACHESIM_LINE_SIZE"
	EnvCacheSize      = "CACHESIM_CACHE_SIZE"
	EnvMissPenalty    = "CACHESIM_MISS_PENALTY"
	EnvDirtyWBPenalty = "CACHESIM_DIRTY_WB_PENALTY"
)

var (
	// ErrNotPositive is returned when a size or penalty is zero or negative,
	// or the associativity is negative.
	ErrNotPositive = errors.New("value must be positive")

	// ErrInvalidAssociativity is returned when the associativity is not 0, 1,
	// or a power of two.
	ErrInvalidAssociativity = errors.New("invalid associativity")

	// ErrNotPowerOfTwo is returned when the line or cache size is not a power
	// of two.
	ErrNotPowerOfTwo = errors.New("line size and cache size must be powers of two")

	// ErrCacheSmallerThanLine is returned when a single line does not fit.
	ErrCacheSmallerThanLine = errors.New("cache size must be at least the line size")

	// ErrCacheNotDivisible is returned when the cache is not a whole number of
	// lines.
	ErrCacheNotDivisible = errors.New("cache size must be divisible by the line size")

	// ErrAssociativityTooLarge is returned when there are more ways than lines.
	ErrAssociativityTooLarge = errors.New("associativity exceeds the number of lines")

	// ErrInvalidValue is returned when an environment variable or file entry
	// cannot be parsed.
	ErrInvalidValue = errors.New("invalid configuration value")

	// ErrConfigFile is returned when the configuration file cannot be read.
	ErrConfigFile = errors.New("cannot read configuration file")
)

// Config holds the parameters of one simulation run.
type Config struct {
	// Associativity is 0 for fully associative, 1 for direct mapped, and n
	// for n-way set associative.
	Associativity int `json:"associativity"`

	// LineByteSize is the size of a cache line in bytes.
	LineByteSize int `json:"line_size"`

	// CacheSizeKB is the total capacity in kilobytes.
	CacheSizeKB int `json:"cache_size_kb"`

	// MissPenalty is the number of cycles charged for every miss.
	MissPenalty int `json:"miss_penalty"`

	// DirtyWBPenalty is the number of cycles charged for every dirty
	// write-back.
	DirtyWBPenalty int `json:"dirty_wb_penalty"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Associativity:  DefaultAssociativity,
		LineByteSize:   DefaultLineByteSize,
		CacheSizeKB:    DefaultCacheSizeKB,
		MissPenalty:    DefaultMissPenalty,
		DirtyWBPenalty: DefaultDirtyWBPenalty,
	}
}

// CacheByteSize returns the capacity in bytes.
func (c Config) CacheByteSize() uint64 {
	return uint64(c.CacheSizeKB) * 1024
}

// NumLines returns how many lines the cache holds.
func (c Config) NumLines() int {
	return c.CacheSizeKB * 1024 / c.LineByteSize
}

func isPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Validate checks that the configuration describes a buildable cache.
func (c Config) Validate() error {
	if c.Associativity < 0 || c.LineByteSize <= 0 || c.CacheSizeKB <= 0 ||
		c.MissPenalty <= 0 || c.DirtyWBPenalty <= 0 {
		return ErrNotPositive
	}

	if c.Associativity > 1 && !isPow2(c.Associativity) {
		return fmt.Errorf("%w: %d", ErrInvalidAssociativity, c.Associativity)
	}

	if !isPow2(c.LineByteSize) || !isPow2(c.CacheSizeKB) {
		return ErrNotPowerOfTwo
	}

	cacheBytes := c.CacheSizeKB * 1024
	if cacheBytes < c.LineByteSize {
		return ErrCacheSmallerThanLine
	}

	if cacheBytes%c.LineByteSize != 0 {
		return ErrCacheNotDivisible
	}

	if c.Associativity > c.NumLines() {
		return fmt.Errorf("%w: %d ways, %d lines",
			ErrAssociativityTooLarge, c.Associativity, c.NumLines())
	}

	return nil
}

func (c *Config) fields() map[string]*int {
	return map[string]*int{
		EnvAssociativity:  &c.Associativity,
		EnvLineSize:       &c.LineByteSize,
		EnvCacheSize:      &c.CacheSizeKB,
		EnvMissPenalty:    &c.MissPenalty,
		EnvDirtyWBPenalty: &c.DirtyWBPenalty,
	}
}

// ApplyEnv overrides cfg with values from the given .env files and then from
// the process environment. Missing files are ignored.
func ApplyEnv(cfg Config, envFiles ...string) (Config, error) {
	values := map[string]string{}

	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}

		fileValues, err := godotenv.Read(f)
		if err != nil {
			return cfg, fmt.Errorf("%w %s: %w", ErrConfigFile, f, err)
		}

		for k, v := range fileValues {
			values[k] = v
		}
	}

	for name, field := range cfg.fields() {
		value, ok := os.LookupEnv(name)
		if !ok {
			value, ok = values[name]
		}

		if !ok {
			continue
		}

		n, err := strconv.Atoi(value)
		if err != nil {
			return cfg, fmt.Errorf("%w: %s=%q", ErrInvalidValue, name, value)
		}

		*field = n
	}

	return cfg, nil
}

// fileConfig distinguishes absent keys from zero values.
type fileConfig struct {
	Associativity  *int `json:"associativity"`
	LineByteSize   *int `json:"line_size"`
	CacheSizeKB    *int `json:"cache_size_kb"`
	MissPenalty    *int `json:"miss_penalty"`
	DirtyWBPenalty *int `json:"dirty_wb_penalty"`
}

// ApplyFile overrides cfg with the keys present in a JSON-with-comments file.
func ApplyFile(cfg Config, path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is user-supplied
	if err != nil {
		return cfg, fmt.Errorf("%w %s: %w", ErrConfigFile, path, err)
	}

	return applyJSONC(cfg, data)
}

func applyJSONC(cfg Config, data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return cfg, fmt.Errorf("%w: invalid JSONC: %w", ErrInvalidValue, err)
	}

	var fc fileConfig

	err = json.Unmarshal(standardized, &fc)
	if err != nil {
		return cfg, fmt.Errorf("%w: invalid JSON: %w", ErrInvalidValue, err)
	}

	overlay := []struct {
		src *int
		dst *int
	}{
		{fc.Associativity, &cfg.Associativity},
		{fc.LineByteSize, &cfg.LineByteSize},
		{fc.CacheSizeKB, &cfg.CacheSizeKB},
		{fc.MissPenalty, &cfg.MissPenalty},
		{fc.DirtyWBPenalty, &cfg.DirtyWBPenalty},
	}

	for _, o := range overlay {
		if o.src != nil {
			*o.dst = *o.src
		}
	}

	return cfg, nil
}

// Flags holds the command-line flags that select a configuration.
type Flags struct {
	ConfigPath string
	EnvFile    string

	values Config
}

// Register adds the configuration flags to fs. The short flags follow the
// classic cache simulator tool: -a -l -s -p -d.
func (f *Flags) Register(fs *pflag.FlagSet) {
	d := Default()

	fs.IntVarP(&f.values.Associativity, "associativity", "a", d.Associativity,
		"0 for fully associative, 1 for direct mapped, n for n-way set associative")
	fs.IntVarP(&f.values.LineByteSize, "line-size", "l", d.LineByteSize,
		"block size in bytes of the cache")
	fs.IntVarP(&f.values.CacheSizeKB, "cache-size", "s", d.CacheSizeKB,
		"size in KB of the cache")
	fs.IntVarP(&f.values.MissPenalty, "miss-penalty", "p", d.MissPenalty,
		"miss penalty in cycles of a cache miss")
	fs.IntVarP(&f.values.DirtyWBPenalty, "dirty-penalty", "d", d.DirtyWBPenalty,
		"penalty in cycles for writing back dirty lines")
	fs.StringVar(&f.ConfigPath, "config", "",
		"JSON (comments allowed) file with cache parameters")
	fs.StringVar(&f.EnvFile, "env-file", ".env",
		"dotenv file with CACHESIM_* variables")
}

// Apply overrides cfg with the flags the user actually set.
func (f *Flags) Apply(cfg Config, fs *pflag.FlagSet) Config {
	changed := []struct {
		name string
		src  int
		dst  *int
	}{
		{"associativity", f.values.Associativity, &cfg.Associativity},
		{"line-size", f.values.LineByteSize, &cfg.LineByteSize},
		{"cache-size", f.values.CacheSizeKB, &cfg.CacheSizeKB},
		{"miss-penalty", f.values.MissPenalty, &cfg.MissPenalty},
		{"dirty-penalty", f.values.DirtyWBPenalty, &cfg.DirtyWBPenalty},
	}

	for _, c := range changed {
		if fs.Changed(c.name) {
			*c.dst = c.src
		}
	}

	return cfg
}

// Resolve merges every source and validates the result.
func (f *Flags) Resolve(fs *pflag.FlagSet) (Config, error) {
	cfg, err := ApplyEnv(Default(), f.EnvFile)
	if err != nil {
		return cfg, err
	}

	if f.ConfigPath != "" {
		cfg, err = ApplyFile(cfg, f.ConfigPath)
		if err != nil {
			return cfg, err
		}
	}

	cfg = f.Apply(cfg, fs)

	err = cfg.Validate()
	if err != nil {
		return cfg, err
	}

	return cfg, nil
}
