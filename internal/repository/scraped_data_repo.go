package repository

import (
	"context"

	"github.com/user/scrape-orchestrator/internal/entity"
)

// ScrapedDataRepository stores the items extracted for a source URL.
type ScrapedDataRepository interface {
	// SaveResult stores every item of result together with the raw result.
	SaveResult(ctx context.Context, sourceURL string, result *entity.ScrapeResult) error
	// FindByURL returns stored items for sourceURL, newest first.
	FindByURL(ctx context.Context, sourceURL string) ([]entity.ScrapedItem, error)
}
