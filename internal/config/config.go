// Package config loads portalql settings.
//
// Settings come from three layers, later ones winning: built-in defaults,
// an optional YAML file, and environment variables. The file is checked
// against an embedded CUE schema before it is decoded, so unknown keys and
// out-of-range values fail with a position instead of being ignored.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/portalql/internal/engine"
	"github.com/roach88/portalql/internal/esclient"
	"github.com/roach88/portalql/internal/facet"
	"github.com/roach88/portalql/internal/logger"
	"github.com/roach88/portalql/internal/lookup"
	"github.com/roach88/portalql/internal/meta"
	"github.com/roach88/portalql/internal/search"
)

//go:embed schema.cue
var schemaSrc []byte

// Environment overrides.
const (
	EnvAddresses = "PORTALQL_ES_ADDRESSES"
	EnvUsername  = "PORTALQL_ES_USERNAME"
	EnvPassword  = "PORTALQL_ES_PASSWORD"
)

// Config is the full portalql configuration.
type Config struct {
	Search Search `yaml:"search"`
	Lookup Lookup `yaml:"lookup"`
	Scroll Scroll `yaml:"scroll"`
	Facets Facets `yaml:"facets"`
	Store  Store  `yaml:"store"`
	Log    Log    `yaml:"log"`
}

// Search locates the search engine and its indices.
type Search struct {
	Addresses []string `yaml:"addresses"`

	// Index prefixes every entity index name: with "icgc27-" donors live
	// in "icgc27-donor-centric".
	Index string `yaml:"index"`

	// RepoIndex names the repository file index outright when set.
	RepoIndex string `yaml:"repo_index"`

	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Lookup locates lookup documents.
type Lookup struct {
	Index string `yaml:"index"`
	Path  string `yaml:"path"`
}

// Scroll tunes id harvesting.
type Scroll struct {
	KeepAlive time.Duration `yaml:"keep_alive"`
	BatchSize int           `yaml:"batch_size"`
}

// Facets tunes facet compilation and baseline caching.
type Facets struct {
	BaselineTTL       time.Duration `yaml:"baseline_ttl"`
	BaselineCacheSize int           `yaml:"baseline_cache_size"`
	MaxTermCount      int           `yaml:"max_term_count"`
}

// Store locates the entity set registry.
type Store struct {
	Path string `yaml:"path"`
}

// Log configures logging.
type Log struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Search: Search{
			Addresses: []string{"http://localhost:9200"},
			Timeout:   30 * time.Second,
		},
		Lookup: Lookup{
			Index: lookup.DefaultIndex,
			Path:  lookup.DefaultPath,
		},
		Scroll: Scroll{
			KeepAlive: search.DefaultKeepAlive,
			BatchSize: search.DefaultBatchSize,
		},
		Facets: Facets{
			BaselineTTL:       facet.DefaultBaselineTTL,
			BaselineCacheSize: facet.DefaultBaselineSize,
			MaxTermCount:      engine.DefaultMaxTermCount,
		},
		Store: Store{Path: "portalql.db"},
		Log:   Log{Level: "info"},
	}
}

// Load reads the file at path over the defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(path, data, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg, os.LookupEnv)
	return cfg, nil
}

// Parse decodes YAML over the defaults. The name is used in error
// positions only. Environment overrides are not applied.
func Parse(name string, data []byte) (Config, error) {
	cfg := Default()
	if err := decode(name, data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(name string, data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := validate(name, data); err != nil {
		return err
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	// A document of only comments decodes as io.EOF and keeps the defaults.
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: decode config: %w", name, err)
	}
	return nil
}

// validate checks the raw document against the embedded schema.
func validate(name string, data []byte) error {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%s: parse config: %w", name, err)
	}
	if doc == nil {
		return nil
	}

	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s: invalid config: %s", name, firstCUEError(err))
	}
	return nil
}

func firstCUEError(err error) string {
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		return errs[0].Error()
	}
	return err.Error()
}

func applyEnv(cfg *Config, lookupEnv func(string) (string, bool)) {
	if v, ok := lookupEnv(EnvAddresses); ok && strings.TrimSpace(v) != "" {
		var addrs []string
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				addrs = append(addrs, a)
			}
		}
		cfg.Search.Addresses = addrs
	}
	if v, ok := lookupEnv(EnvUsername); ok {
		cfg.Search.Username = v
	}
	if v, ok := lookupEnv(EnvPassword); ok {
		cfg.Search.Password = v
	}
}

// IndexFor names the index holding documents of entity type t.
func (c Config) IndexFor(t meta.EntityType) string {
	if t == meta.RepositoryFile && c.Search.RepoIndex != "" {
		return c.Search.RepoIndex
	}
	return c.Search.Index + string(t)
}

// Client returns the search client settings.
func (c Config) Client() esclient.Config {
	return esclient.Config{
		Addresses: c.Search.Addresses,
		Username:  c.Search.Username,
		Password:  c.Search.Password,
		Timeout:   c.Search.Timeout,
	}
}

// Coordinates returns the lookup document coordinates.
func (c Config) Coordinates() lookup.Coordinates {
	return lookup.Coordinates{Index: c.Lookup.Index, Path: c.Lookup.Path}
}

// Harvest returns the scroll settings for id harvesting.
func (c Config) Harvest() search.HarvestOptions {
	return search.HarvestOptions{KeepAlive: c.Scroll.KeepAlive, BatchSize: c.Scroll.BatchSize}
}

// Logger returns the logger settings.
func (c Config) Logger() logger.Config {
	return logger.Config{Level: c.Log.Level, Pretty: c.Log.Pretty}
}
