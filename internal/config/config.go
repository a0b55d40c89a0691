package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration for the demo server and the
// engine components it wires up.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Compiler CompilerConfig `mapstructure:"compiler"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Numeric  NumericConfig  `mapstructure:"numeric"`
	RuleText RuleTextLimits `mapstructure:"rule_text"`
}

// HTTPConfig contains HTTP server settings.
// Respects Go stdlib net/http defaults where appropriate.
type HTTPConfig struct {
	Port            int `mapstructure:"port"`
	ReadTimeout     int `mapstructure:"read_timeout"`     // seconds, default 30
	WriteTimeout    int `mapstructure:"write_timeout"`    // seconds, default 30
	IdleTimeout     int `mapstructure:"idle_timeout"`     // seconds, default 120
	MaxHeaderBytes  int `mapstructure:"max_header_bytes"` // bytes, stdlib default 1MB
	MaxBodyBytes    int `mapstructure:"max_body_bytes"`   // bytes, NO stdlib default!
	ShutdownTimeout int `mapstructure:"shutdown_timeout"` // seconds, default 10
}

// CompilerConfig bounds how large a ruleset the compiler will accept.
type CompilerConfig struct {
	MaxRules             int `mapstructure:"max_rules"`              // rules per compile; loaded but not read by the compiler
	MaxConditionsPerRule int `mapstructure:"max_conditions_per_rule"`
}

// CacheConfig holds cache settings. Only MaxEntries is read: it sizes the
// ristretto-backed eligible-predicate-set cache (§4.5) built by the demo
// server. The TTL fields and CountersPerEntry are loaded but not read, and
// the base-condition cache (§4.3) is not configured from here.
type CacheConfig struct {
	BaseConditionTTLSeconds     int   `mapstructure:"base_condition_ttl_seconds"`
	EligiblePredicateTTLSeconds int   `mapstructure:"eligible_predicate_ttl_seconds"`
	MaxEntries                  int64 `mapstructure:"max_entries"`
	CountersPerEntry            int64 `mapstructure:"counters_per_entry"` // ristretto NumCounters sizing hint; not read, DefaultRistrettoConfig uses 10x
}

// NumericConfig holds settings for the batched numeric evaluator (§4.6).
// They are loaded but not read: the numeric package uses its own
// MinGroupSize constant and CPU feature detection.
type NumericConfig struct {
	MinGroupSize int  `mapstructure:"min_group_size"` // same default as numeric.MinGroupSize; not read
	SIMDEnabled  bool `mapstructure:"simd_enabled"`   // not read; the batched path is chosen by CPU feature detection alone
}

// RuleTextLimits holds size bounds for hand-authored rule text (ruleql and
// YAML import). They are loaded but not read: the ruleql and YAML sources
// apply no size limits.
type RuleTextLimits struct {
	MaxExpressionLength  int `mapstructure:"max_expression_length"`  // bytes, ruleql source has no parser-imposed limit
	MaxDescriptionLength int `mapstructure:"max_description_length"` // bytes
	MaxRulesPerImport    int `mapstructure:"max_rules_per_import"`   // rules per YAML/ruleql bulk import
}

// Load reads configuration from file and environment variables
// Priority: env vars > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults (respecting vendor defaults where safe)
	setDefaults(v)

	// Read config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override everything
	// RULEENGINE_HTTP_PORT, RULEENGINE_CACHE_MAX_ENTRIES, etc.
	v.SetEnvPrefix("RULEENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values.
// Explicit about vendor defaults vs. our additions.
func setDefaults(v *viper.Viper) {
	// HTTP defaults (respecting Go stdlib where it has them)
	v.SetDefault("http.port", 12011)
	v.SetDefault("http.read_timeout", 30)         // stdlib has no default
	v.SetDefault("http.write_timeout", 30)        // stdlib has no default
	v.SetDefault("http.idle_timeout", 120)        // stdlib has no default
	v.SetDefault("http.max_header_bytes", 32768)  // override stdlib 1MB default (too large)
	v.SetDefault("http.max_body_bytes", 10485760) // 10MB - stdlib has NO limit!
	v.SetDefault("http.shutdown_timeout", 10)

	// Compiler limits
	v.SetDefault("compiler.max_rules", 100000) // 100K rules, mirrors spec.md's size budget headroom
	v.SetDefault("compiler.max_conditions_per_rule", 64)

	// Cache sizing/TTL (§4.3 base-condition cache, §4.5 eligible-predicate cache)
	v.SetDefault("cache.base_condition_ttl_seconds", 300) // 5 minutes, spec.md default
	v.SetDefault("cache.eligible_predicate_ttl_seconds", 600)
	v.SetDefault("cache.max_entries", 10000)
	v.SetDefault("cache.counters_per_entry", 10) // ristretto recommends ~10x max_entries counters

	// Numeric/SIMD dispatch (§4.6)
	v.SetDefault("numeric.min_group_size", 8)
	v.SetDefault("numeric.simd_enabled", true)

	// Rule text limits (ruleql/YAML bulk import has no parser-imposed limit - we enforce)
	v.SetDefault("rule_text.max_expression_length", 65536) // 64KB
	v.SetDefault("rule_text.max_description_length", 4096) // 4KB
	v.SetDefault("rule_text.max_rules_per_import", 1000)
}
