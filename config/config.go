// Package config holds the tunables of a serialization context. Values are
// layered: defaults, then an optional JSON file, then PROTOSTREAM_*
// environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mstoykov/envconfig"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gopkg.in/guregu/null.v3"

	"github.com/oy3o/protostream"
)

// Options configures a registry context and the tooling around it.
type Options struct {
	// MaxNestedDepth bounds message nesting while decoding.
	MaxNestedDepth null.Int `json:"maxNestedDepth" envconfig:"PROTOSTREAM_MAX_NESTED_DEPTH"`
	// BufferSize is the size of the buffered writers and readers wrapped
	// around caller streams.
	BufferSize null.Int `json:"bufferSize" envconfig:"PROTOSTREAM_BUFFER_SIZE"`
	// PreferTypeIDs makes the wrapper write a type id instead of the type
	// name whenever one is assigned.
	PreferTypeIDs null.Bool `json:"preferTypeIds" envconfig:"PROTOSTREAM_PREFER_TYPE_IDS"`

	LockFile  null.String `json:"lockFile" envconfig:"PROTOSTREAM_LOCK_FILE"`
	LogLevel  null.String `json:"logLevel" envconfig:"PROTOSTREAM_LOG_LEVEL"`
	LogFormat null.String `json:"logFormat" envconfig:"PROTOSTREAM_LOG_FORMAT"`
}

// Default returns the built-in options.
func Default() Options {
	return Options{
		MaxNestedDepth: null.NewInt(protostream.DefaultMaxNestedMessageDepth, false),
		BufferSize:     null.NewInt(4096, false),
		PreferTypeIDs:  null.NewBool(true, false),
		LockFile:       null.NewString("proto.lock", false),
		LogLevel:       null.NewString("info", false),
		LogFormat:      null.NewString("json", false),
	}
}

// Apply returns o overridden by every valid field of cfg.
func (o Options) Apply(cfg Options) Options {
	if cfg.MaxNestedDepth.Valid {
		o.MaxNestedDepth = cfg.MaxNestedDepth
	}
	if cfg.BufferSize.Valid {
		o.BufferSize = cfg.BufferSize
	}
	if cfg.PreferTypeIDs.Valid {
		o.PreferTypeIDs = cfg.PreferTypeIDs
	}
	if cfg.LockFile.Valid && cfg.LockFile.String != "" {
		o.LockFile = cfg.LockFile
	}
	if cfg.LogLevel.Valid && cfg.LogLevel.String != "" {
		o.LogLevel = cfg.LogLevel
	}
	if cfg.LogFormat.Valid && cfg.LogFormat.String != "" {
		o.LogFormat = cfg.LogFormat
	}
	return o
}

// Validate checks the option values.
func (o Options) Validate() error {
	if o.MaxNestedDepth.Int64 < 1 {
		return fmt.Errorf("%w: maxNestedDepth must be positive, got %d", ErrInvalidOption, o.MaxNestedDepth.Int64)
	}
	if o.BufferSize.Int64 < 0 {
		return fmt.Errorf("%w: bufferSize must not be negative, got %d", ErrInvalidOption, o.BufferSize.Int64)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(o.LogLevel.String)); err != nil {
		return fmt.Errorf("%w: logLevel: %w", ErrInvalidOption, err)
	}
	switch o.LogFormat.String {
	case "json", "console":
	default:
		return fmt.Errorf("%w: logFormat must be json or console, got %q", ErrInvalidOption, o.LogFormat.String)
	}
	return nil
}

// Load builds the options from the defaults, the JSON file at path (skipped
// when path is empty) and env. A nil env reads the process environment.
func Load(fs afero.Fs, path string, env map[string]string) (Options, error) {
	result := Default()
	if path != "" {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return result, err
		}
		var fileConf Options
		if err := json.Unmarshal(data, &fileConf); err != nil {
			return result, fmt.Errorf("%w: %s: %w", ErrInvalidOption, path, err)
		}
		result = result.Apply(fileConf)
	}

	lookup := os.LookupEnv
	if env != nil {
		lookup = func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		}
	}
	var envConf Options
	if err := envconfig.Process("", &envConf, lookup); err != nil {
		return result, fmt.Errorf("%w: %w", ErrInvalidOption, err)
	}
	result = result.Apply(envConf)
	return result, result.Validate()
}

// NewLogger builds a logger writing to w in the configured format and level.
func (o Options) NewLogger(w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(o.LogLevel.String))
	if err != nil {
		return zerolog.Nop(), err
	}
	if o.LogFormat.String == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("component", "protostream").Logger(), nil
}
