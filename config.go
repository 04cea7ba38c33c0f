package depfacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/brunobiangulo/depfacts/depparse"
	"github.com/brunobiangulo/depfacts/export"
	"github.com/brunobiangulo/depfacts/publish"
	"github.com/brunobiangulo/depfacts/segment"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the depfacts engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.depfacts/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. "home" (default) uses ~/.depfacts/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// Source selects and configures the dependency source.
	Source depparse.Config `json:"source" yaml:"source"`

	// Cache enables the Redis annotation cache when Addr is set.
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Publish enables NATS publication of triples when URL is set.
	Publish publish.Config `json:"publish" yaml:"publish"`

	// Segment controls sentence splitting for PDF, DOCX and XLSX input.
	Segment segment.Config `json:"segment" yaml:"segment"`

	// Namespaces used by the RDF output formats.
	Namespaces export.Namespaces `json:"namespaces" yaml:"namespaces"`

	// Output defaults
	OutputFormat   string `json:"output_format" yaml:"output_format"`
	SentenceColumn bool   `json:"sentence_column" yaml:"sentence_column"`

	// ContinueOnError records a failed sentence and moves on instead of
	// aborting the document.
	ContinueOnError bool `json:"continue_on_error" yaml:"continue_on_error"`

	// Verbose logs every edge and triple at debug level.
	Verbose bool `json:"verbose" yaml:"verbose"`

	Watch WatchConfig `json:"watch" yaml:"watch"`

	// HTTPAddr is the listen address of the HTTP API.
	HTTPAddr string `json:"http_addr" yaml:"http_addr"`
}

// CacheConfig configures the Redis annotation cache.
type CacheConfig struct {
	Addr     string        `json:"addr" yaml:"addr"`
	Password string        `json:"password" yaml:"password"`
	DB       int           `json:"db" yaml:"db"`
	TTL      time.Duration `json:"ttl" yaml:"ttl"`
	Prefix   string        `json:"prefix" yaml:"prefix"`
}

// WatchConfig configures directory watching.
type WatchConfig struct {
	Include  []string      `json:"include" yaml:"include"`
	Exclude  []string      `json:"exclude" yaml:"exclude"`
	Debounce time.Duration `json:"debounce" yaml:"debounce"`
}

// DefaultConfig returns a Config that annotates through a local CoreNLP
// server and stores triples in ~/.depfacts/depfacts.db.
func DefaultConfig() Config {
	return Config{
		DBName:     "depfacts",
		StorageDir: "home",
		Source: depparse.Config{
			Provider: "corenlp",
			BaseURL:  "http://localhost:9000",
			Scheme:   depparse.SchemeEnhancedPlusPlus,
			Timeout:  60 * time.Second,
		},
		Cache: CacheConfig{
			TTL: 7 * 24 * time.Hour,
		},
		Segment: segment.Config{
			MaxChars: 1000,
			MinWords: 2,
		},
		Namespaces:   export.DefaultNamespaces(),
		OutputFormat: string(export.FormatTSV),
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		HTTPAddr: ":8080",
	}
}

// LoadConfig reads the configuration with ReadConfig and validates it.
func LoadConfig(path string) (Config, error) {
	cfg, err := ReadConfig(path)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ReadConfig returns DefaultConfig overlaid with the YAML file at path (if
// path is not empty) and then with DEPFACTS_* environment variables. The
// result is not validated so callers can apply further overrides first.
func ReadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from DEPFACTS_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("DEPFACTS_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("DEPFACTS_SOURCE"); v != "" {
		c.Source.Provider = v
	}
	if v := os.Getenv("DEPFACTS_CORENLP_URL"); v != "" {
		c.Source.BaseURL = v
	}
	if v := os.Getenv("DEPFACTS_SCHEME"); v != "" {
		c.Source.Scheme = v
	}
	if v := os.Getenv("DEPFACTS_CONLLU_PATH"); v != "" {
		c.Source.Path = v
	}
	if v := os.Getenv("DEPFACTS_REDIS_ADDR"); v != "" {
		c.Cache.Addr = v
	}
	if v := os.Getenv("DEPFACTS_REDIS_PASSWORD"); v != "" {
		c.Cache.Password = v
	}
	if v := os.Getenv("DEPFACTS_NATS_URL"); v != "" {
		c.Publish.URL = v
	}
	if v := os.Getenv("DEPFACTS_OUTPUT_FORMAT"); v != "" {
		c.OutputFormat = v
	}
	if v := os.Getenv("DEPFACTS_HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("DEPFACTS_CONTINUE_ON_ERROR"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: DEPFACTS_CONTINUE_ON_ERROR: %v", ErrInvalidConfig, err)
		}
		c.ContinueOnError = b
	}
	return nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Source.Provider {
	case "corenlp":
	case "conllu":
		if c.Source.Path == "" {
			return fmt.Errorf("%w: conllu source requires source.path", ErrInvalidConfig)
		}
	case "":
		return fmt.Errorf("%w: source.provider is required", ErrInvalidConfig)
	default:
		return fmt.Errorf("%w: unknown source.provider %q", ErrInvalidConfig, c.Source.Provider)
	}

	switch c.Source.Scheme {
	case "", depparse.SchemeBasic, depparse.SchemeEnhanced, depparse.SchemeEnhancedPlusPlus:
	default:
		return fmt.Errorf("%w: unknown source.scheme %q", ErrInvalidConfig, c.Source.Scheme)
	}

	if _, err := export.ParseFormat(c.OutputFormat); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("%w: cache.ttl must not be negative", ErrInvalidConfig)
	}
	if c.Segment.MaxChars < 0 || c.Segment.MinWords < 0 {
		return fmt.Errorf("%w: segment limits must not be negative", ErrInvalidConfig)
	}
	if c.Namespaces.Term != "" && !strings.Contains(c.Namespaces.Term, "://") {
		return fmt.Errorf("%w: namespaces.term must be an absolute IRI", ErrInvalidConfig)
	}
	if c.Namespaces.Local != "" && !strings.Contains(c.Namespaces.Local, "://") {
		return fmt.Errorf("%w: namespaces.local must be an absolute IRI", ErrInvalidConfig)
	}
	return nil
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "depfacts"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db"
		}
		return filepath.Join(home, ".depfacts", name+".db")
	}
}
