package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "RECALL_"
	// Delimiter is the key delimiter for nested config.
	Delimiter = "."
)

// DefaultFiles are tried in order when no config path is given.
var DefaultFiles = []string{
	"recall.yaml",
	"recall.yml",
	"recall.json",
	"configs/recall.yaml",
	"/etc/recall/config.yaml",
}

// Loader merges configuration sources. A Loader is single use: create a new
// one for every reload.
type Loader struct {
	k    *koanf.Koanf
	path string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{k: koanf.New(Delimiter)}
}

// Load merges, lowest priority first: defaults, the config file (configPath,
// or the first of DefaultFiles that exists), RECALL_* environment variables,
// then overrides. The result is validated.
func (l *Loader) Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	steps := []struct {
		name string
		run  func() error
	}{
		{"defaults", l.loadDefaults},
		{"file", func() error { return l.loadConfigFile(configPath) }},
		{"env", l.loadEnv},
		{"overrides", func() error { return l.loadOverrides(overrides) }},
		{"defaults", l.fillDefaults},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return nil, fmt.Errorf("config: %s: %w", step.name, err)
		}
	}

	var cfg Config
	if err := l.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "mapstructure"}); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := ValidateWithDetails(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Path returns the config file that was loaded, or "" if none was.
func (l *Loader) Path() string {
	return l.path
}

func (l *Loader) loadDefaults() error {
	return l.k.Load(confmap.Provider(structToMap(DefaultConfig(), ""), Delimiter), nil)
}

func (l *Loader) loadConfigFile(configPath string) error {
	if configPath != "" {
		return l.loadFile(configPath)
	}
	for _, candidate := range DefaultFiles {
		if _, err := os.Stat(candidate); err == nil {
			return l.loadFile(candidate)
		}
	}
	return nil
}

func (l *Loader) loadFile(path string) error {
	var parser koanf.Parser
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	if err := l.k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	l.path = path
	return nil
}

func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(EnvPrefix, Delimiter, EnvKey), nil)
}

func (l *Loader) loadOverrides(overrides map[string]interface{}) error {
	if len(overrides) == 0 {
		return nil
	}
	return l.k.Load(confmap.Provider(overrides, Delimiter), nil)
}

// EnvKey maps an environment variable to a config key. The first underscore
// after the prefix separates the section; a double underscore descends one
// more level, so single underscores inside key names survive:
//
//	RECALL_LOG_LEVEL                   -> log.level
//	RECALL_CONTEXT_RECENT_WINDOW       -> context.recent_window
//	RECALL_STORAGE_BADGER__SYNC_WRITES -> storage.badger.sync_writes
func EnvKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	section, rest, found := strings.Cut(key, "_")
	if !found {
		return section
	}
	return section + Delimiter + strings.ReplaceAll(rest, "__", Delimiter)
}

// Get returns a raw merged value by key.
func (l *Loader) Get(key string) interface{} {
	return l.k.Get(key)
}

// fillDefaults restores default keys that a nested override map replaced.
func (l *Loader) fillDefaults() error {
	for key, value := range structToMap(DefaultConfig(), "") {
		if l.k.Exists(key) {
			continue
		}
		if err := l.k.Set(key, value); err != nil {
			return fmt.Errorf("set default for %s: %w", key, err)
		}
	}
	return nil
}

// structToMap flattens a struct into dotted mapstructure keys.
func structToMap(v interface{}, prefix string) map[string]interface{} {
	result := make(map[string]interface{})
	val := reflect.Indirect(reflect.ValueOf(v))
	if val.Kind() != reflect.Struct {
		return result
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		key := field.Tag.Get("mapstructure")
		if !field.IsExported() || key == "" || key == "-" {
			continue
		}
		if prefix != "" {
			key = prefix + Delimiter + key
		}

		fieldVal := val.Field(i)
		switch fieldVal.Kind() {
		case reflect.Struct:
			for k, nested := range structToMap(fieldVal.Interface(), key) {
				result[k] = nested
			}
		case reflect.Map:
			if !fieldVal.IsNil() {
				result[key] = fieldVal.Interface()
			}
		case reflect.Slice:
			items := make([]interface{}, fieldVal.Len())
			for j := range items {
				items[j] = fieldVal.Index(j).Interface()
			}
			result[key] = items
		default:
			result[key] = fieldVal.Interface()
		}
	}
	return result
}

// Print returns the merged configuration for debugging. Secrets are not redacted.
func (l *Loader) Print() string {
	return l.k.Sprint()
}

// Load is a convenience function to load configuration.
func Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	return NewLoader().Load(configPath, overrides)
}
