package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the pestsearch API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Fusion    FusionConfig    `yaml:"fusion"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Resources ResourcesConfig `yaml:"resources"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	QueryTimeoutSec int `yaml:"query_timeout_sec"` // per-turn deadline
}

// DatabaseConfig holds Redis connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider         string `yaml:"provider"`
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url"`
	Model            string `yaml:"model"`
	Dimensions       int    `yaml:"dimensions"`
	QueryInstruction string `yaml:"query_instruction"`
	CacheEnabled     *bool  `yaml:"cache_enabled"`
}

// FusionConfig holds result-fusion tuning. These are empirically tuned
// deployment values, not engine semantics.
type FusionConfig struct {
	NameWeight              float64 `yaml:"name_weight"`
	TopicalWeight           float64 `yaml:"topical_weight"`
	DamageWeight            float64 `yaml:"damage_weight"`
	ScoreCutoff             float64 `yaml:"score_cutoff"`
	HardcodedCutoff         float64 `yaml:"hardcoded_cutoff"`
	HardcodedMatchThreshold float64 `yaml:"hardcoded_match_threshold"`
	TopN                    int     `yaml:"top_n"`
	DownweightSource        string  `yaml:"downweight_source"`
	DownweightFactor        float64 `yaml:"downweight_factor"`
}

// RetrievalConfig holds per-field search settings.
type RetrievalConfig struct {
	TopK   int `yaml:"top_k"`
	InnerK int `yaml:"inner_k"` // sub-items fetched per parent for nested fields
}

// ResourcesConfig points at the synonym and canned-answer YAML resources.
type ResourcesConfig struct {
	Synonyms      string `yaml:"synonyms"`
	CannedAnswers string `yaml:"canned_answers"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.QueryTimeoutSec <= 0 {
		c.HTTP.QueryTimeoutSec = 15
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}

	// Weights default as a trio: all-zero means "unset".
	if c.Fusion.NameWeight == 0 && c.Fusion.TopicalWeight == 0 && c.Fusion.DamageWeight == 0 {
		c.Fusion.NameWeight = 0.9
		c.Fusion.TopicalWeight = 0.05
		c.Fusion.DamageWeight = 0.05
	}
	if c.Fusion.ScoreCutoff <= 0 {
		c.Fusion.ScoreCutoff = 0.4
	}
	if c.Fusion.HardcodedCutoff <= 0 {
		c.Fusion.HardcodedCutoff = 0.6
	}
	if c.Fusion.HardcodedMatchThreshold <= 0 {
		c.Fusion.HardcodedMatchThreshold = 0.85
	}
	if c.Fusion.TopN <= 0 {
		c.Fusion.TopN = 10
	}
	if c.Fusion.DownweightSource == "" {
		c.Fusion.DownweightSource = "community-answer"
	}
	if c.Fusion.DownweightFactor <= 0 {
		c.Fusion.DownweightFactor = 0.8
	}

	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 10
	}
	if c.Retrieval.InnerK <= 0 {
		c.Retrieval.InnerK = 3
	}

	if c.Resources.Synonyms == "" {
		c.Resources.Synonyms = filepath.Join("config", "synonyms.yaml")
	}
	if c.Resources.CannedAnswers == "" {
		c.Resources.CannedAnswers = filepath.Join("config", "canned.yaml")
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Fusion.NameWeight < 0 || c.Fusion.TopicalWeight < 0 || c.Fusion.DamageWeight < 0 {
		return fmt.Errorf("fusion weights must be non-negative")
	}
	if c.Fusion.DownweightFactor > 1 {
		return fmt.Errorf("fusion.downweight_factor must not exceed 1, got %g", c.Fusion.DownweightFactor)
	}
	if c.Fusion.HardcodedMatchThreshold > 1 {
		return fmt.Errorf("fusion.hardcoded_match_threshold must not exceed 1, got %g",
			c.Fusion.HardcodedMatchThreshold)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must be non-negative, got %d", c.Embedding.Dimensions)
	}
	return nil
}

// Cache reports whether the embedding cache is on (default: on).
func (e EmbeddingConfig) Cache() bool {
	if e.CacheEnabled == nil {
		return true
	}
	return *e.CacheEnabled
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
