package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CrawlerConf holds the bulk crawler defaults read from crawler.yaml.
type CrawlerConf struct {
	SourcesFile string `yaml:"sources_file"`
	Depth       int    `yaml:"depth"`
	Timeout     int    `yaml:"timeout"`
	Retries     int    `yaml:"retries"`
	ToWebhook   bool   `yaml:"to_webhook"`
}

type crawlerFile struct {
	Crawler CrawlerConf `yaml:"crawler"`
}

// LoadCrawler reads the "crawler" section of a yaml file.
// A missing file yields a zero CrawlerConf.
func LoadCrawler(path string) (CrawlerConf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return CrawlerConf{}, nil
		}
		return CrawlerConf{}, fmt.Errorf("failed to read crawler config: %w", err)
	}

	var f crawlerFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return CrawlerConf{}, fmt.Errorf("failed to parse crawler config: %w", err)
	}
	return f.Crawler, nil
}
