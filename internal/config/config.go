// Package config loads the daemon's environment-variable configuration
// into a typed struct, grounded directly on
// internal/shared/config/config.go's reflect-driven struct filler:
// recursively walk a struct's fields, derive each field's env var name
// from its Go field name (UPPER_SNAKE_CASE, joined by the parent
// struct's prefix), and fall back to the field's `default:"..."` tag
// when the env var is unset.
package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Struct is the full configuration surface for cmd/sentineld, per
// spec.md §6's ScheduleConfig/RconConfig plus the ambient DB/ClickHouse/
// Valkey/Discord/Log sections this daemon also needs.
type Struct struct {
	Rcon struct {
		ConnectTimeoutMs int `default:"5000"`
		CommandTimeoutMs int `default:"3000"`
		MaxRetries       int `default:"3"`
	}
	Retry struct {
		MaxConsecutiveFailures int `default:"10"`
		BackoffMultiplier      int `default:"2"`
		MaxBackoffMinutes      int `default:"30"`
		DormantRetryMinutes    int `default:"60"`
	}
	Schedule struct {
		Enabled                bool `default:"true"`
		DefaultTimeoutMs       int  `default:"10000"`
		DefaultRetryOnFailure  bool `default:"true"`
		DefaultMaxRetries      int  `default:"2"`
		HistoryRetentionHours  int  `default:"168"`
		MaxConcurrentPerServer int  `default:"1"`
	}
	Db struct {
		Host string `default:"localhost"`
		Port int    `default:"5432"`
		Name string `default:"rcon-sentinel"`
		User string `default:"rcon-sentinel"`
		Pass string `default:"rcon-sentinel"`
	}
	ClickHouse struct {
		Host     string `default:"localhost"`
		Port     int    `default:"9000"`
		Database string `default:"default"`
		Username string `default:"rcon_sentinel"`
		Password string `default:"rcon_sentinel"`
	}
	Valkey struct {
		Host     string `default:"localhost"`
		Port     int    `default:"6379"`
		Password string `default:""`
		Database int    `default:"0"`
	}
	Discord struct {
		Enabled   bool   `default:"false"`
		BotToken  string `default:""`
		ChannelID string `default:""`
	}
	Log struct {
		Level string `default:"info"`
		File  string `default:""`
	}
	Debug struct {
		Pretty  bool `default:"true"`
		NoColor bool `default:"false"`
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

// toUpperSnakeCase converts a camelCase/PascalCase field name to
// UPPER_SNAKE_CASE.
func toUpperSnakeCase(s string) string {
	var result string
	for i, r := range s {
		if r >= 'A' && r <= 'Z' && i > 0 {
			result += "_"
		}
		result += strings.ToUpper(string(r))
	}
	return result
}

func envKey(prefix, name string) string {
	if prefix != "" {
		return prefix + "_" + toUpperSnakeCase(name)
	}
	return toUpperSnakeCase(name)
}

// fillStruct recursively populates s's fields from the environment, per
// each field's `default:"..."` tag.
func fillStruct(s interface{}, prefix string) {
	val := reflect.ValueOf(s).Elem()
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		key := envKey(prefix, fieldType.Name)

		if field.Kind() == reflect.Struct {
			fillStruct(field.Addr().Interface(), key)
			continue
		}

		if !field.CanSet() {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(getEnv(key, fieldType.Tag.Get("default")))
		case reflect.Int:
			defaultIntValue, _ := strconv.Atoi(fieldType.Tag.Get("default"))
			field.SetInt(int64(getEnvAsInt(key, defaultIntValue)))
		case reflect.Bool:
			field.SetBool(getEnvAsBool(key, fieldType.Tag.Get("default") == "true"))
		}
	}
}

// Load reads a .env file if present (missing is not an error, matching
// godotenv.Load's typical usage in the pack), then fills a Struct from
// the process environment.
func Load() *Struct {
	_ = godotenv.Load()

	cfg := &Struct{}
	fillStruct(cfg, "")
	return cfg
}
