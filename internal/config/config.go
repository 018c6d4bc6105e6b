package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir string `yaml:"data_dir"`

	Snapshots  SnapshotsConfig  `yaml:"snapshots"`
	Export     ExportConfig     `yaml:"export"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Index      IndexConfig      `yaml:"index"`
	RunLog     RunLogConfig     `yaml:"run_log"`
	Watch      WatchConfig      `yaml:"watch"`
	HTTP       HTTPConfig       `yaml:"http"`
	Mirror     MirrorConfig     `yaml:"mirror"`
}

type SnapshotsConfig struct {
	Dir     string   `yaml:"dir"`
	Include string   `yaml:"include"`
	Exclude []string `yaml:"exclude,omitempty"`
}

type ExportConfig struct {
	Dir        string `yaml:"dir"`
	Prefix     string `yaml:"prefix"`
	LineEnding string `yaml:"line_ending"` // "crlf" or "lf"
	Compress   bool   `yaml:"compress"`
}

type ClassifierConfig struct {
	Strict bool `yaml:"strict"`
}

type IndexConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type RunLogConfig struct {
	Enabled bool `yaml:"enabled"`
}

type WatchConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// MirrorConfig describes the optional S3-compatible export mirror. Keys are
// read from TILECENSUS_MIRROR_ACCESS_KEY_ID and
// TILECENSUS_MIRROR_SECRET_ACCESS_KEY, never from the file.
type MirrorConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Endpoint      string `yaml:"endpoint"`
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix"`
	Workers       int    `yaml:"workers"`
	QueueCapacity int    `yaml:"queue_capacity"`
}

func Defaults() Config {
	return Config{
		DataDir: "./data",
		Snapshots: SnapshotsConfig{
			Include: "*.tiles.jsonl*",
			Exclude: []string{".*"},
		},
		Export: ExportConfig{
			Prefix:     "tile_counts_",
			LineEnding: "crlf",
		},
		Index:  IndexConfig{Enabled: true},
		RunLog: RunLogConfig{Enabled: true},
		Watch:  WatchConfig{DebounceMs: 500},
		HTTP:   HTTPConfig{Addr: "127.0.0.1:8095"},
		Mirror: MirrorConfig{Prefix: "tilecensus", Workers: 2, QueueCapacity: 64},
	}
}

// Load reads a tilecensus.yaml over the defaults. An empty path, or a
// missing file when allowMissing is set, yields the defaults.
func Load(path string, allowMissing bool) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
		case os.IsNotExist(err) && allowMissing:
		default:
			return cfg, err
		}
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Normalize fills directories derived from DataDir.
func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.DataDir = strings.TrimSpace(c.DataDir)
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if strings.TrimSpace(c.Snapshots.Dir) == "" {
		c.Snapshots.Dir = filepath.Join(c.DataDir, "snapshots")
	}
	if strings.TrimSpace(c.Snapshots.Include) == "" {
		c.Snapshots.Include = "*.tiles.jsonl*"
	}
	if strings.TrimSpace(c.Export.Dir) == "" {
		c.Export.Dir = filepath.Join(c.DataDir, "exports")
	}
	if c.Export.Prefix == "" {
		c.Export.Prefix = "tile_counts_"
	}
	c.Export.LineEnding = strings.ToLower(strings.TrimSpace(c.Export.LineEnding))
	if c.Export.LineEnding == "" {
		c.Export.LineEnding = "crlf"
	}
	if strings.TrimSpace(c.Index.Path) == "" {
		c.Index.Path = filepath.Join(c.DataDir, "index", "census.sqlite")
	}
	if c.Watch.DebounceMs <= 0 {
		c.Watch.DebounceMs = 500
	}
	if c.Mirror.Workers <= 0 {
		c.Mirror.Workers = 2
	}
	if c.Mirror.QueueCapacity <= 0 {
		c.Mirror.QueueCapacity = 64
	}
}

// SetDataDir moves c to dir. Paths that were derived from the previous
// DataDir follow it; paths set explicitly are kept.
func (c *Config) SetDataDir(dir string) {
	if c == nil || strings.TrimSpace(dir) == "" {
		return
	}
	old := c.DataDir
	if filepath.Clean(c.Snapshots.Dir) == filepath.Join(old, "snapshots") {
		c.Snapshots.Dir = ""
	}
	if filepath.Clean(c.Export.Dir) == filepath.Join(old, "exports") {
		c.Export.Dir = ""
	}
	if filepath.Clean(c.Index.Path) == filepath.Join(old, "index", "census.sqlite") {
		c.Index.Path = ""
	}
	c.DataDir = dir
	c.Normalize()
}

func (c Config) Validate() error {
	switch c.Export.LineEnding {
	case "crlf", "lf":
	default:
		return fmt.Errorf("export.line_ending must be crlf or lf, got %q", c.Export.LineEnding)
	}
	if strings.ContainsAny(c.Export.Prefix, `/\`) {
		return fmt.Errorf("export.prefix must not contain path separators")
	}
	if c.Watch.DebounceMs < 0 {
		return fmt.Errorf("watch.debounce_ms must be >= 0")
	}
	if c.Mirror.Enabled && (strings.TrimSpace(c.Mirror.Endpoint) == "" || strings.TrimSpace(c.Mirror.Bucket) == "") {
		return fmt.Errorf("mirror.endpoint and mirror.bucket are required when mirror.enabled")
	}
	return nil
}

func (c Config) CRLF() bool { return c.Export.LineEnding == "crlf" }

func (c Config) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMs) * time.Millisecond
}
