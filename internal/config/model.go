package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultModelConfigPath is where the model configuration is looked up when
// the CLI is not given an explicit path.
const DefaultModelConfigPath = "models.json"

// Model describes the model-side configuration (models.json). All model
// loading behind it is an external capability; the engine only consumes the
// port and reports whether the file was loaded.
type Model struct {
	EnginePort     int         `json:"engine_port"`
	ModelPath      string      `json:"model_path"`
	DefaultModel   string      `json:"default_model"`
	ModelDirectory string      `json:"model_directory"`
	FallbackModels []string    `json:"fallback_models"`
	Preferences    Preferences `json:"model_preferences"`
	EnvVars        EnvVars     `json:"environment_variables"`

	Path string `json:"-"`
}

type Preferences struct {
	PreferQuantized bool   `json:"prefer_quantized"`
	MaxFileSizeGB   uint64 `json:"max_file_size_gb"`
	MinFileSizeMB   uint64 `json:"min_file_size_mb"`
}

type EnvVars struct {
	ModelPathVar    string `json:"model_path_var"`
	DefaultModelVar string `json:"default_model_var"`
	ModelsDirVar    string `json:"models_dir_var"`
}

// DefaultModelConfig builds a model configuration from environment overrides
// and whatever GGUF files can be discovered in the model directory.
func DefaultModelConfig() Model {
	modelsDir := envOr("MODELS_DIR", "models")
	fallback := DiscoverModels(modelsDir)

	modelPath := os.Getenv("MODEL_PATH")
	if modelPath == "" && len(fallback) > 0 {
		modelPath = filepath.Join(modelsDir, fallback[0])
	}

	return Model{
		EnginePort:     DefaultAPIPort,
		ModelPath:      modelPath,
		DefaultModel:   os.Getenv("DEFAULT_MODEL"),
		ModelDirectory: modelsDir,
		FallbackModels: fallback,
		Preferences: Preferences{
			PreferQuantized: envBool("PREFER_QUANTIZED", true),
			MaxFileSizeGB:   envUint("MAX_FILE_SIZE_GB", 20),
			MinFileSizeMB:   envUint("MIN_FILE_SIZE_MB", 100),
		},
		EnvVars: EnvVars{
			ModelPathVar:    "MODEL_PATH",
			DefaultModelVar: "DEFAULT_MODEL",
			ModelsDirVar:    "MODELS_DIR",
		},
	}
}

// LoadModel reads a model configuration file, falling back to defaults when
// the file is missing or malformed.
func LoadModel(path string) Model {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultModelConfig()
	}

	var mc Model
	if err := json.Unmarshal(data, &mc); err != nil {
		return DefaultModelConfig()
	}
	mc.Path = path
	return mc
}

// SaveModel writes the model configuration as indented JSON.
func SaveModel(path string, mc Model) error {
	data, err := json.MarshalIndent(mc, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize model config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write model config %s: %w", path, err)
	}
	return nil
}

// DiscoverModels lists GGUF files in dir, sorted by name. A missing or
// unreadable directory yields an empty list.
func DiscoverModels(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var models []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".gguf") {
			models = append(models, e.Name())
		}
	}
	sort.Strings(models)
	return models
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return strings.EqualFold(v, "true")
}

func envUint(key string, fallback uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
