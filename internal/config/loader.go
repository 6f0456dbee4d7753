// Package config loads daemon configuration from YAML, JSON or TOML files,
// selected by file extension.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and are replaced by defaults in main.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir    string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	DefaultModel string `json:"default_model" yaml:"default_model" toml:"default_model"`

	// Per-session defaults; sessions may override ctx_size at open time.
	CtxSize    int `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size"`
	BatchSize  int `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	GenCeiling int `json:"gen_ceiling" yaml:"gen_ceiling" toml:"gen_ceiling"`
	GPULayers  int `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`

	LogLevel           string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	MaxBodyBytes       int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`

	Sampling Sampling `json:"sampling" yaml:"sampling" toml:"sampling"`
}

// Sampling carries optional sampler defaults applied to every new session.
// Nil fields keep the engine's built-in defaults.
type Sampling struct {
	Temperature      *float32 `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopK             *int32   `json:"top_k" yaml:"top_k" toml:"top_k"`
	TopP             *float32 `json:"top_p" yaml:"top_p" toml:"top_p"`
	MinP             *float32 `json:"min_p" yaml:"min_p" toml:"min_p"`
	RepeatPenalty    *float32 `json:"repeat_penalty" yaml:"repeat_penalty" toml:"repeat_penalty"`
	RepeatLastN      *int32   `json:"repeat_last_n" yaml:"repeat_last_n" toml:"repeat_last_n"`
	PresencePenalty  *float32 `json:"presence_penalty" yaml:"presence_penalty" toml:"presence_penalty"`
	FrequencyPenalty *float32 `json:"frequency_penalty" yaml:"frequency_penalty" toml:"frequency_penalty"`
	Mirostat         *int32   `json:"mirostat" yaml:"mirostat" toml:"mirostat"`
	MirostatTau      *float32 `json:"mirostat_tau" yaml:"mirostat_tau" toml:"mirostat_tau"`
	MirostatEta      *float32 `json:"mirostat_eta" yaml:"mirostat_eta" toml:"mirostat_eta"`
	Seed             *int32   `json:"seed" yaml:"seed" toml:"seed"`
	NumPredict       *int32   `json:"num_predict" yaml:"num_predict" toml:"num_predict"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
