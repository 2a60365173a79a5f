// Package config loads interpreter-wide limits and modes through viper,
// layering defaults, an optional config file, and environment overrides
// (ambient stack, see SPEC_FULL.md).
package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// SanitizerMode selects the three error-sanitization modes of spec §4.9.
type SanitizerMode string

const (
	ModeDevelopment SanitizerMode = "development"
	ModeProduction  SanitizerMode = "production"
	ModeStrict      SanitizerMode = "strict"
)

// Config is the typed projection of the viper store.
type Config struct {
	// Input caps (spec §4.9).
	MaxFileSize       int64
	MaxPolyglotBlock  int64
	MaxSourceString   int64
	MaxLineLength     int
	MaxListElements   int
	MaxDictEntries    int

	// Evaluator limits.
	ParserRecursionLimit int
	CallDepthLimit       int
	MaxStackFrames       int

	// GC.
	GCThreshold int
	GCEnabled   bool

	// Polyglot.
	PolyglotDefaultTimeout time.Duration
	PolyglotMaxConcurrency int

	// Safety.
	SanitizerMode       SanitizerMode
	RestrictedBaseDirs  []string
	RegexTimeout        time.Duration
	RegexMaxInput       int
	RegexMaxMatches     int
	RegexMaxPatternLen  int

	// Audit log.
	AuditLogPath string
	AuditHMACKey string
}

// Default returns the spec's hard defaults (§4.9), used when no config file
// or environment override is present.
func Default() *Config {
	return &Config{
		MaxFileSize:            10 * 1024 * 1024,
		MaxPolyglotBlock:       1 * 1024 * 1024,
		MaxSourceString:        100 * 1024 * 1024,
		MaxLineLength:          10_000,
		MaxListElements:        10_000_000,
		MaxDictEntries:         1_000_000,
		ParserRecursionLimit:   1_000,
		CallDepthLimit:         10_000,
		MaxStackFrames:         10_000,
		GCThreshold:            1_000,
		GCEnabled:              true,
		PolyglotDefaultTimeout: 30 * time.Second,
		PolyglotMaxConcurrency: 8,
		SanitizerMode:          ModeProduction,
		RegexTimeout:           1 * time.Second,
		RegexMaxInput:          100 * 1024,
		RegexMaxMatches:        10_000,
		RegexMaxPatternLen:     1024,
		AuditLogPath:           "naab-audit.log",
	}
}

// Load builds a viper store seeded with Default()'s values, optionally
// merges a config file at path (if non-empty), and applies NAAB_-prefixed
// environment variable overrides, following the layered-config convention
// of cue-lang/cue and DataDog/datadog-agent (see SPEC_FULL.md).
func Load(path string) (*Config, error) {
	d := Default()
	v := viper.New()
	v.SetEnvPrefix("NAAB")
	v.AutomaticEnv()

	setDefaults(v, d)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", path)
		}
	}

	return &Config{
		MaxFileSize:            v.GetInt64("max_file_size"),
		MaxPolyglotBlock:       v.GetInt64("max_polyglot_block"),
		MaxSourceString:        v.GetInt64("max_source_string"),
		MaxLineLength:          v.GetInt("max_line_length"),
		MaxListElements:        v.GetInt("max_list_elements"),
		MaxDictEntries:         v.GetInt("max_dict_entries"),
		ParserRecursionLimit:   v.GetInt("parser_recursion_limit"),
		CallDepthLimit:         v.GetInt("call_depth_limit"),
		MaxStackFrames:         v.GetInt("max_stack_frames"),
		GCThreshold:            v.GetInt("gc_threshold"),
		GCEnabled:              v.GetBool("gc_enabled"),
		PolyglotDefaultTimeout: v.GetDuration("polyglot_default_timeout"),
		PolyglotMaxConcurrency: v.GetInt("polyglot_max_concurrency"),
		SanitizerMode:          SanitizerMode(v.GetString("sanitizer_mode")),
		RestrictedBaseDirs:     v.GetStringSlice("restricted_base_dirs"),
		RegexTimeout:           v.GetDuration("regex_timeout"),
		RegexMaxInput:          v.GetInt("regex_max_input"),
		RegexMaxMatches:        v.GetInt("regex_max_matches"),
		RegexMaxPatternLen:     v.GetInt("regex_max_pattern_len"),
		AuditLogPath:           v.GetString("audit_log_path"),
		AuditHMACKey:           v.GetString("audit_hmac_key"),
	}, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("max_file_size", d.MaxFileSize)
	v.SetDefault("max_polyglot_block", d.MaxPolyglotBlock)
	v.SetDefault("max_source_string", d.MaxSourceString)
	v.SetDefault("max_line_length", d.MaxLineLength)
	v.SetDefault("max_list_elements", d.MaxListElements)
	v.SetDefault("max_dict_entries", d.MaxDictEntries)
	v.SetDefault("parser_recursion_limit", d.ParserRecursionLimit)
	v.SetDefault("call_depth_limit", d.CallDepthLimit)
	v.SetDefault("max_stack_frames", d.MaxStackFrames)
	v.SetDefault("gc_threshold", d.GCThreshold)
	v.SetDefault("gc_enabled", d.GCEnabled)
	v.SetDefault("polyglot_default_timeout", d.PolyglotDefaultTimeout)
	v.SetDefault("polyglot_max_concurrency", d.PolyglotMaxConcurrency)
	v.SetDefault("sanitizer_mode", string(d.SanitizerMode))
	v.SetDefault("restricted_base_dirs", d.RestrictedBaseDirs)
	v.SetDefault("regex_timeout", d.RegexTimeout)
	v.SetDefault("regex_max_input", d.RegexMaxInput)
	v.SetDefault("regex_max_matches", d.RegexMaxMatches)
	v.SetDefault("regex_max_pattern_len", d.RegexMaxPatternLen)
	v.SetDefault("audit_log_path", d.AuditLogPath)
	v.SetDefault("audit_hmac_key", d.AuditHMACKey)
}
