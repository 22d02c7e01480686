package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/indexsync/internal/domain/entity"
)

// Backend drivers.
const (
	BackendRedis = "redis"
	BackendBleve = "bleve"
)

// Source drivers.
const (
	SourcePostgres = "postgres"
	SourceSQLite   = "sqlite"
	SourceSQLite3  = "sqlite3"
	SourceMemory   = "memory"
)

// Config holds the indexsync configuration.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	HTTP    HTTPConfig    `yaml:"http"`
	Auth    AuthConfig    `yaml:"auth"`
	Backend BackendConfig `yaml:"backend"`
	Source  SourceConfig  `yaml:"source"`
	Search  SearchConfig  `yaml:"search"`
	Reindex ReindexConfig `yaml:"reindex"`
	Hooks   HooksConfig   `yaml:"hooks"`
	Types   []TypeConfig  `yaml:"types"`
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
}

// BackendConfig selects and connects the search backend.
type BackendConfig struct {
	Driver           string   `yaml:"driver"` // redis, bleve (default: redis)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	// Dir holds bleve indexes. Empty keeps them in memory.
	Dir string `yaml:"dir"`
}

// SourceConfig connects the system of record.
type SourceConfig struct {
	Driver string `yaml:"driver"` // postgres, sqlite, sqlite3, memory
	// DSN is the connection string, or a fixtures file for the memory driver.
	DSN string `yaml:"dsn"`
}

// SearchConfig tunes result materialization.
type SearchConfig struct {
	PageSize  int `yaml:"page_size"`
	CacheSize int `yaml:"cache_size"`
	MaxCount  int `yaml:"max_count"`
}

// ReindexConfig holds rebuild settings.
type ReindexConfig struct {
	LockDir string `yaml:"lock_dir"`
}

// HooksConfig bounds the snapshots kept between pre- and post-delete hooks.
type HooksConfig struct {
	SnapshotTTLSec   int `yaml:"snapshot_ttl_sec"`
	SnapshotCapacity int `yaml:"snapshot_capacity"`
}

// TypeConfig declares one entity type: where it is stored and how it is indexed.
type TypeConfig struct {
	Tag       string            `yaml:"tag"`
	Table     string            `yaml:"table"`
	Key       string            `yaml:"key"`
	Columns   map[string]string `yaml:"columns"` // column -> kind
	Relations []RelationConfig  `yaml:"relations"`
	// Descriptor is nil for types that are only reachable through relations.
	Descriptor *DescriptorConfig `yaml:"descriptor"`
}

// RelationConfig declares a relation attribute.
type RelationConfig struct {
	Name    string `yaml:"name"`
	Target  string `yaml:"target"`
	Column  string `yaml:"column"`
	Reverse bool   `yaml:"reverse"`
}

// DescriptorConfig mirrors descriptor.Descriptor.
type DescriptorConfig struct {
	Index          string         `yaml:"index"`
	IndexSettings  map[string]any `yaml:"index_settings"`
	Fields         []FieldConfig  `yaml:"fields"`
	Defaults       map[string]any `yaml:"defaults"`
	Cascades       []string       `yaml:"cascades"`
	DocType        string         `yaml:"doc_type"`
	MatchAttribute string         `yaml:"match_attribute"`
	DisableMatch   bool           `yaml:"disable_match"`
	// ExcludeWhen drops entities whose attribute renders as the given value.
	ExcludeWhen map[string]any `yaml:"exclude_when"`
}

// FieldConfig declares one index field. Sources are attribute names or
// dotted relation paths.
type FieldConfig struct {
	Sources []string       `yaml:"sources"`
	Name    string         `yaml:"name"`
	Config  map[string]any `yaml:"config"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a YAML document.
func Parse(data []byte) (Config, error) {
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

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Backend.Driver == "" {
		c.Backend.Driver = BackendRedis
	}
	if c.Backend.ReadinessTimeout <= 0 {
		c.Backend.ReadinessTimeout = 10
	}
	if c.Source.Driver == "" {
		c.Source.Driver = SourceMemory
	}
	if c.Search.PageSize <= 0 {
		c.Search.PageSize = 10
	}
	if c.Search.CacheSize <= 0 {
		c.Search.CacheSize = 1000
	}
	if c.Search.MaxCount <= 0 {
		c.Search.MaxCount = 100
	}
	if c.Reindex.LockDir == "" {
		c.Reindex.LockDir = filepath.Join(os.TempDir(), "indexsync-locks")
	}
	if c.Hooks.SnapshotTTLSec <= 0 {
		c.Hooks.SnapshotTTLSec = 300
	}
	if c.Hooks.SnapshotCapacity <= 0 {
		c.Hooks.SnapshotCapacity = 10000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Backend.Driver {
	case BackendRedis:
		if len(c.Backend.Addrs) == 0 {
			return errors.New("backend.addrs is required for the redis driver")
		}
	case BackendBleve:
	default:
		return fmt.Errorf("backend.driver must be %q or %q, got %q", BackendRedis, BackendBleve, c.Backend.Driver)
	}

	switch c.Source.Driver {
	case SourcePostgres, SourceSQLite, SourceSQLite3:
		if c.Source.DSN == "" {
			return fmt.Errorf("source.dsn is required for the %s driver", c.Source.Driver)
		}
	case SourceMemory:
	default:
		return fmt.Errorf("source.driver must be one of postgres, sqlite, sqlite3, memory, got %q", c.Source.Driver)
	}

	return c.validateTypes()
}

func (c *Config) validateTypes() error {
	tags := make(map[string]bool, len(c.Types))
	for i, t := range c.Types {
		if !entity.ValidTag(t.Tag) {
			return fmt.Errorf("types[%d].tag must be <namespace>.<type>, got %q", i, t.Tag)
		}
		if tags[t.Tag] {
			return fmt.Errorf("types[%d]: duplicate tag %q", i, t.Tag)
		}
		tags[t.Tag] = true
		if t.Table == "" || t.Key == "" {
			return fmt.Errorf("types.%s: table and key are required", t.Tag)
		}
		for col, kind := range t.Columns {
			if _, ok := entity.ParseKind(kind); !ok {
				return fmt.Errorf("types.%s.columns.%s: unknown kind %q", t.Tag, col, kind)
			}
		}
		if d := t.Descriptor; d != nil {
			for j, f := range d.Fields {
				if len(f.Sources) == 0 {
					return fmt.Errorf("types.%s.descriptor.fields[%d]: sources are required", t.Tag, j)
				}
			}
		}
	}
	for _, t := range c.Types {
		for _, r := range t.Relations {
			if r.Name == "" || r.Column == "" {
				return fmt.Errorf("types.%s.relations: name and column are required", t.Tag)
			}
			if !tags[r.Target] {
				return fmt.Errorf("types.%s.relations.%s: unknown target %q", t.Tag, r.Name, r.Target)
			}
		}
	}
	return nil
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
