package interfaces

import (
	"context"

	"github.com/ternarybob/crawlcore/internal/models"
)

// Planner translates free-text user intent into a CrawlConfig. The real
// natural-language planner is out of scope for this repo; this
// interface is the pluggable seam it would implement.
type Planner interface {
	Plan(ctx context.Context, query string) (models.CrawlConfig, error)
}
