// Package models defines the core data types shared across crawlcore:
// crawl configuration, iterations, fingerprints, checkpoints, and the
// state/substate vocabulary of the crawl lifecycle.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var configValidator = validator.New()

// Strategy identifies how the seed set should be expanded into a frontier.
type Strategy string

const (
	StrategyFocused    Strategy = "focused"
	StrategyRecursive  Strategy = "recursive"
	StrategySitemap    Strategy = "sitemap"
	StrategySearchBased Strategy = "search_based"
	StrategyAPI        Strategy = "api"
)

// CrawlConfig is immutable once a crawl starts. Fields carry validator tags
// so ConfigError can be raised synchronously at Start() for bad input.
type CrawlConfig struct {
	SeedURLs []string `json:"seed_urls" validate:"required,min=1,dive,url"`
	Strategy Strategy `json:"strategy" validate:"required,oneof=focused recursive sitemap search_based api"`

	ConcurrentRequests int           `json:"concurrent_requests" validate:"required,min=1,max=200"`
	PerHostCap         int           `json:"per_host_cap" validate:"min=0"`
	DelaySeconds        float64      `json:"delay_seconds" validate:"min=0"`
	MaxPages            int          `json:"max_pages" validate:"min=0"`
	MaxDocuments        int          `json:"max_documents" validate:"min=0"`
	MaxDepth            int          `json:"max_depth" validate:"min=0"`
	MaxFileBytes        int64        `json:"max_file_bytes" validate:"min=0"`
	MaxTotalBytes       int64        `json:"max_total_bytes" validate:"min=0"`
	TimeoutSeconds      int          `json:"timeout_seconds" validate:"min=1"`
	MaxRetries          int          `json:"max_retries" validate:"min=0,max=10"`
	RespectRobots       bool         `json:"respect_robots"`
	UserAgent           string       `json:"user_agent" validate:"required"`
	AllowedFileTypes    []string     `json:"allowed_file_types"`
	KeywordFilters      []string     `json:"keyword_filters"`
	MinQualityScore     float64      `json:"min_quality_score" validate:"min=0,max=1"`
	CheckpointEveryN    int          `json:"checkpoint_every_n" validate:"min=1"`
	MaxDurationMinutes  int          `json:"max_duration_minutes" validate:"min=0"`
	FrontierSoftCap     int          `json:"frontier_soft_cap" validate:"min=0"`
	AllowForkFromFailed bool         `json:"allow_fork_from_failed"`
}

// DefaultCrawlConfig returns a CrawlConfig populated with the defaults named
// throughout the crawl lifecycle (per-host cap 4, frontier soft cap 1e6, etc).
func DefaultCrawlConfig(seeds []string) CrawlConfig {
	return CrawlConfig{
		SeedURLs:           seeds,
		Strategy:           StrategyFocused,
		ConcurrentRequests: 8,
		PerHostCap:         4,
		DelaySeconds:       1,
		MaxPages:           0,
		MaxDocuments:       0,
		MaxDepth:           10,
		MaxFileBytes:       50 * 1024 * 1024,
		MaxTotalBytes:      0,
		TimeoutSeconds:     30,
		MaxRetries:         3,
		RespectRobots:      true,
		UserAgent:          "crawlcore/1.0",
		MinQualityScore:    0,
		CheckpointEveryN:   25,
		MaxDurationMinutes: 0,
		FrontierSoftCap:    1_000_000,
	}
}

// ToJSON serializes the config for checkpoint/iteration snapshots.
func (c CrawlConfig) ToJSON() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal crawl config: %w", err)
	}
	return string(data), nil
}

// CrawlConfigFromJSON deserializes a config snapshot.
func CrawlConfigFromJSON(data string) (CrawlConfig, error) {
	var c CrawlConfig
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return c, fmt.Errorf("unmarshal crawl config: %w", err)
	}
	return c, nil
}

// EffectiveDelay returns DelaySeconds as a time.Duration for convenience.
func (c CrawlConfig) EffectiveDelay() time.Duration {
	return time.Duration(c.DelaySeconds * float64(time.Second))
}

// EffectivePerHostCap returns PerHostCap, defaulting to 4 when unset.
func (c CrawlConfig) EffectivePerHostCap() int {
	if c.PerHostCap <= 0 {
		return 4
	}
	return c.PerHostCap
}

// Validate checks the config against its validator tags, returning a
// ConfigError surfaced synchronously at Start.
func (c CrawlConfig) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return NewError(KindConfigError, "", err)
	}
	return nil
}
