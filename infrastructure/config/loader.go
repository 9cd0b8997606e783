// Package config loads YAML configuration files with environment variable overrides.
//
// Before overrides are applied the loader reads .env files:
//
//  1. ENV_FILE, when set, is the only file loaded
//  2. .env.local, when present
//  3. .env
//
// Struct fields opt into overrides with an `env` tag:
//
//	type ArchiveConfig struct {
//	    Backend string `yaml:"backend" env:"ARCHIVE_BACKEND"`
//	}
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}

	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}

	return nil
}

// Load reads a YAML config file into T and applies environment overrides.
// A missing file is not an error: T starts from its zero value so the
// service can run from defaults and environment alone.
func Load[T any](path string) (*T, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load environment files: %w", err)
	}

	var cfg T

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	default:
		if unmarshalErr := yaml.Unmarshal(data, &cfg); unmarshalErr != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, unmarshalErr)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// LoadWithDefaults reads a YAML config file, applies defaults, then re-applies
// env overrides so the environment always wins.
func LoadWithDefaults[T any](path string, setDefaults func(*T)) (*T, error) {
	cfg, err := Load[T](path)
	if err != nil {
		return nil, err
	}

	if setDefaults != nil {
		setDefaults(cfg)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// GetConfigPath returns CONFIG_PATH when set, otherwise defaultPath.
func GetConfigPath(defaultPath string) string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return defaultPath
}

func applyEnvOverrides(cfg any) {
	v := reflect.ValueOf(cfg)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	applyEnvToStruct(v)
}

func applyEnvToStruct(v reflect.Value) {
	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := range v.NumField() {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}) {
			applyEnvToStruct(field)
			continue
		}

		if field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct {
			if field.IsNil() {
				field.Set(reflect.New(field.Type().Elem()))
			}
			applyEnvToStruct(field.Elem())
			continue
		}

		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" {
			continue
		}

		if envVal := os.Getenv(envTag); envVal != "" {
			setFieldFromString(field, envVal)
		}
	}
}

func setFieldFromString(field reflect.Value, val string) {
	switch field.Kind() {
	case reflect.String:
		field.SetString(val)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			if d, err := time.ParseDuration(val); err == nil {
				field.SetInt(int64(d))
			}
			return
		}
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			field.SetFloat(f)
		}

	case reflect.Bool:
		field.SetBool(parseBool(val))

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(val, ",")
			for i, p := range parts {
				parts[i] = strings.TrimSpace(p)
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
}

// parseBool accepts "true", "1" and "yes" (case-insensitive).
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}
