// Package planner ships one reference Planner: it treats the free-text
// query as a newline/comma-separated seed list and returns a
// DefaultCrawlConfig over it. The real natural-language planner is out of
// scope for this repo; this exists so callers of
// interfaces.Planner have something to wire during development.
package planner

import (
	"context"
	"errors"
	"strings"

	"github.com/ternarybob/crawlcore/internal/interfaces"
	"github.com/ternarybob/crawlcore/internal/models"
)

// Static is the minimal reference Planner implementation.
type Static struct{}

// New builds the reference Planner.
func New() *Static { return &Static{} }

var _ interfaces.Planner = (*Static)(nil)

func (p *Static) Plan(ctx context.Context, query string) (models.CrawlConfig, error) {
	var seeds []string
	for _, field := range strings.FieldsFunc(query, func(r rune) bool {
		return r == '\n' || r == ',' || r == ' '
	}) {
		trimmed := strings.TrimSpace(field)
		if trimmed == "" {
			continue
		}
		seeds = append(seeds, trimmed)
	}
	if len(seeds) == 0 {
		return models.CrawlConfig{}, models.NewError(models.KindConfigError, "", errors.New("no seed URLs found in query"))
	}
	return models.DefaultCrawlConfig(seeds), nil
}
