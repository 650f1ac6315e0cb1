// Package config loads the launcher's ini configuration and the crawler's yaml settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/ini.v1"
)

// Artifact formats understood by the proxy materializer.
const (
	ProxyFormatColon = "colon"
	ProxyFormatJSON  = "json"
)

// PathsConf locates the launcher's data sources.
type PathsConf struct {
	Root      string `ini:"root"`
	Manifest  string `ini:"manifest"`
	Proxies   string `ini:"proxies"`
	Crawler   string `ini:"crawler"`
	HistoryDB string `ini:"history_db"`
}

// LaunchConf controls how plugin entry points are invoked.
type LaunchConf struct {
	Interpreter  string `ini:"interpreter"`
	ModulePrefix string `ini:"module_prefix"`

	// CrawlerPlugin is launched as crawler.crawler with crawler.yaml flags.
	// Empty leaves every plugin on the standard convention.
	CrawlerPlugin string `ini:"crawler_plugin"`
}

// ProxyConf controls proxy materialization.
type ProxyConf struct {
	File       string `ini:"file"`
	UniqueFile bool   `ini:"unique_file"`
	Format     string `ini:"format"`
}

// LogConf contains logging specific configuration.
type LogConf struct {
	Level string `ini:"level"`
	File  string `ini:"file"`
}

// ServerConf configures the HTTP launcher API.
type ServerConf struct {
	Addr      string `ini:"addr"`
	StaticDir string `ini:"static_dir"`
}

// Config is the launcher's unified configuration.
type Config struct {
	Paths  PathsConf  `ini:"paths"`
	Launch LaunchConf `ini:"launch"`
	Proxy  ProxyConf  `ini:"proxy"`
	Log    LogConf    `ini:"log"`
	Server ServerConf `ini:"server"`
}

// Default returns the configuration used when no ini file is present.
// Paths mirror the project layout the plugins expect.
func Default() *Config {
	return &Config{
		Paths: PathsConf{
			Root:     ".",
			Manifest: filepath.Join("plugins", "manifest.json"),
			Proxies:  filepath.Join("data", "proxies", "proxies.json"),
			Crawler:  filepath.Join("config", "crawler.yaml"),
		},
		Launch: LaunchConf{
			Interpreter:  "python",
			ModulePrefix: "skunkscrape.plugins",
		},
		Proxy: ProxyConf{
			Format: ProxyFormatColon,
		},
		Log: LogConf{
			Level: "info",
			File:  filepath.Join("data", "logs", "main.log"),
		},
		Server: ServerConf{
			Addr: "127.0.0.1:8080",
		},
	}
}

// Load reads the ini file at path over the defaults. A missing file is not an
// error; the defaults are returned with Root set to the file's directory.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		cfg.Paths.Root = filepath.Dir(path)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			iniFile, err := ini.Load(path)
			if err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
			if err := iniFile.MapTo(cfg); err != nil {
				return nil, fmt.Errorf("failed to map config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	overrideFromEnv(&cfg.Log.Level, "SKUNKSCRAPE_LOG_LEVEL")
	overrideFromEnv(&cfg.Proxy.File, "SKUNKSCRAPE_PROXY_FILE")
	overrideFromEnvBool(&cfg.Proxy.UniqueFile, "SKUNKSCRAPE_UNIQUE_PROXY_FILE")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Proxy.Format {
	case "":
		c.Proxy.Format = ProxyFormatColon
	case ProxyFormatColon, ProxyFormatJSON:
	default:
		return fmt.Errorf("invalid proxy format %q: want %q or %q", c.Proxy.Format, ProxyFormatColon, ProxyFormatJSON)
	}
	if c.Launch.Interpreter == "" {
		return errors.New("launch interpreter must not be empty")
	}
	return nil
}

// Resolve returns p joined to the configured root unless p is empty or absolute.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Paths.Root, p)
}

func overrideFromEnv(target *string, envName string) {
	if v := os.Getenv(envName); v != "" {
		*target = v
	}
}

func overrideFromEnvBool(target *bool, envName string) {
	if v := os.Getenv(envName); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}
