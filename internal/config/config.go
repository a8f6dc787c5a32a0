// Package config loads planbuilder.cue: a CUE file validated against an
// embedded schema and decoded into Config.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaSource string

// DefaultFile is looked up in the working directory when --config is unset.
const DefaultFile = "planbuilder.cue"

// Config is the resolved configuration.
type Config struct {
	Database    string
	QuietPeriod time.Duration
	Actor       string
	LogLevel    slog.Level
	Collection  string
}

// fileConfig mirrors #Config field for field.
type fileConfig struct {
	Database    string `json:"database"`
	QuietPeriod string `json:"quiet_period"`
	Actor       string `json:"actor"`
	LogLevel    string `json:"log_level"`
	Collection  string `json:"collection,omitempty"`
}

// Error is a configuration failure, with the CUE position when known.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("config %s: %s", e.Field, e.Message)
	}
	return "config: " + e.Message
}

// Default returns the schema defaults.
func Default() Config {
	cfg, err := Parse("defaults.cue", nil)
	if err != nil {
		// the embedded schema is fixed; its defaults always resolve
		panic(err)
	}
	return cfg
}

// Load reads and validates path. A missing file is an error; use
// LoadOptional for the implicit default file.
func Load(path string) (Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, src)
}

// LoadOptional is Load, except that a missing file yields the defaults.
func LoadOptional(path string) (Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Parse validates src against the schema. filename is used in positions.
func Parse(filename string, src []byte) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, formatCUEError(err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	data := ctx.CompileBytes(src, cue.Filename(filename))
	if err := data.Err(); err != nil {
		return Config{}, formatCUEError(err)
	}

	v := def.Unify(data)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, formatCUEError(err)
	}

	var fc fileConfig
	if err := v.Decode(&fc); err != nil {
		return Config{}, formatCUEError(err)
	}
	return fc.resolve()
}

func (fc fileConfig) resolve() (Config, error) {
	quiet, err := time.ParseDuration(fc.QuietPeriod)
	if err != nil {
		return Config{}, &Error{Field: "quiet_period", Message: err.Error()}
	}
	if quiet <= 0 {
		return Config{}, &Error{Field: "quiet_period", Message: "must be positive"}
	}
	level, err := ParseLevel(fc.LogLevel)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Database:    fc.Database,
		QuietPeriod: quiet,
		Actor:       fc.Actor,
		LogLevel:    level,
		Collection:  fc.Collection,
	}, nil
}

// ParseLevel maps a log_level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, &Error{Field: "log_level", Message: err.Error()}
	}
	return level, nil
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error()}
	}
	first := errs[0]
	out := &Error{Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		out.Pos = positions[0]
	}
	return out
}
