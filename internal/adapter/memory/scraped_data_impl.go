package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/user/scrape-orchestrator/internal/entity"
)

// ScrapedDataRepository is an in-memory repository.ScrapedDataRepository.
type ScrapedDataRepository struct {
	mu     sync.RWMutex
	nextID int64
	byURL  map[string][]entity.ScrapedItem
}

func NewScrapedDataRepository() *ScrapedDataRepository {
	return &ScrapedDataRepository{byURL: make(map[string][]entity.ScrapedItem)}
}

func (r *ScrapedDataRepository) SaveResult(_ context.Context, sourceURL string, result *entity.ScrapeResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range result.Clone().Items {
		r.nextID++
		item.ID = r.nextID
		item.SourceURL = sourceURL
		r.byURL[sourceURL] = append(r.byURL[sourceURL], item)
	}
	return nil
}

func (r *ScrapedDataRepository) FindByURL(_ context.Context, sourceURL string) ([]entity.ScrapedItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := slices.Clone(r.byURL[sourceURL])
	slices.Reverse(items)
	if items == nil {
		items = []entity.ScrapedItem{}
	}
	return items, nil
}
