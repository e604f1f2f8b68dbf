// Package config provides the configuration of the application.
package config

import (
	"os"
	"path/filepath"
	"strings"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/ktr0731/dynpb/logger"
	"github.com/ktr0731/dynpb/meta"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	xdgbasedir "github.com/zchee/go-xdgbasedir"
)

const configFileName = "config.toml"

// Config represents the conclusive configuration of the application.
type Config struct {
	Default *Default `toml:"default"`
	Format  *Format  `toml:"format"`
	Cache   *Cache   `toml:"cache"`
	Meta    *Meta    `toml:"meta"`
}

// Default stores the default schema sources used when no flags override
// them.
type Default struct {
	ProtoPath     []string `toml:"protoPath"`
	ProtoFile     []string `toml:"protoFile"`
	DescriptorSet string   `toml:"descriptorSet"`
}

// Format stores the default shape of the JSON form of decoded messages.
type Format struct {
	Indent       string `toml:"indent"`
	EmitDefaults bool   `toml:"emitDefaults"`
	EnumsAsInts  bool   `toml:"enumsAsInts"`
	OrigNames    bool   `toml:"origNames"`
}

// Cache stores the behavior of the compiled schema cache.
type Cache struct {
	Enabled bool `toml:"enabled"`
}

// Meta stores configurations for the application itself.
type Meta struct {
	ColoredOutput bool `toml:"coloredOutput"`
}

// ValidationError is returned by Validate if the config has one or more
// invalid items. The wrapped error enumerates all of them.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate defines invalid conditions and validates whether c has
// invalid conditions.
func (c *Config) Validate() error {
	var result error
	invalidCases := []struct {
		name string
		cond bool
	}{
		{"default.protoFile and default.descriptorSet are mutually exclusive", len(c.Default.ProtoFile) > 0 && c.Default.DescriptorSet != ""},
		{"cache.enabled requires proto sources, not a descriptor set", c.Cache.Enabled && c.Default.DescriptorSet != ""},
		{"format.indent must consist of spaces and tabs", strings.Trim(c.Format.Indent, " \t") != ""},
	}
	for _, c := range invalidCases {
		if c.cond {
			result = multierror.Append(result, errors.New(c.name))
		}
	}
	if result != nil {
		return &ValidationError{Err: result}
	}
	return nil
}

// Get returns the conclusive config. Each config item is resolved in the
// following precedence: flag values, the global config file, and then
// default values. fs may be nil if no flags should be merged.
func Get(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigFile(configFilePath())
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "failed to read the config file")
		}
		logger.Println("the config file is not found, use the default config")
	} else {
		logger.Scriptf("use the config file at %s", func() []interface{} {
			return []interface{}{v.ConfigFileUsed()}
		})
	}

	if fs != nil {
		bindFlags(v, fs)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "toml" }); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal the config")
	}
	if err := expandPaths(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func configFilePath() string {
	return filepath.Join(xdgbasedir.ConfigHome(), meta.AppName, configFileName)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("default.protopath", []string{})
	v.SetDefault("default.protofile", []string{})
	v.SetDefault("default.descriptorset", "")
	v.SetDefault("format.indent", "  ")
	v.SetDefault("format.emitdefaults", false)
	v.SetDefault("format.enumsasints", false)
	v.SetDefault("format.orignames", false)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("meta.coloredoutput", true)
}

// bindFlags maps config keys to the flags overriding them. Flags that fs
// doesn't define are skipped so that sub-commands with fewer flags can
// reuse the same bindings.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	bindings := map[string]string{
		"default.protopath":     "path",
		"default.protofile":     "proto",
		"default.descriptorset": "descriptor-set",
		"format.indent":         "indent",
		"format.emitdefaults":   "emit-defaults",
		"format.enumsasints":    "enums-as-ints",
		"format.orignames":      "orig-names",
		"cache.enabled":         "cache",
	}
	for key, name := range bindings {
		if f := fs.Lookup(name); f != nil {
			// BindPFlag fails only if the flag is nil.
			_ = v.BindPFlag(key, f)
		}
	}
}

// expandPaths expands '~' in all path-like config items to the home
// directory.
func expandPaths(cfg *Config) error {
	expand := func(paths []string) error {
		for i, p := range paths {
			expanded, err := homedir.Expand(p)
			if err != nil {
				return errors.Wrapf(err, "failed to expand the path %s", p)
			}
			paths[i] = expanded
		}
		return nil
	}
	if err := expand(cfg.Default.ProtoPath); err != nil {
		return err
	}
	if err := expand(cfg.Default.ProtoFile); err != nil {
		return err
	}
	if cfg.Default.DescriptorSet != "" {
		expanded, err := homedir.Expand(cfg.Default.DescriptorSet)
		if err != nil {
			return errors.Wrapf(err, "failed to expand the path %s", cfg.Default.DescriptorSet)
		}
		cfg.Default.DescriptorSet = expanded
	}
	return nil
}
