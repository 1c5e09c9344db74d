package request

import (
	"encoding/json"
	"fmt"

	"github.com/user/scrape-orchestrator/internal/entity"
	"github.com/user/scrape-orchestrator/internal/repository"
)

// ScrapeRequest is the body of POST /api/scrape.
type ScrapeRequest struct {
	URL         string             `json:"url"`
	SearchTerms entity.SearchTerms `json:"searchTerms"`
	Selectors   entity.Selectors   `json:"selectors,omitempty"`
	Options     json.RawMessage    `json:"options,omitempty"`
}

// BulkScrapeRequest is the body of POST /api/scrape/bulk.
type BulkScrapeRequest struct {
	URLs        []string           `json:"urls"`
	SearchTerms entity.SearchTerms `json:"searchTerms"`
	Selectors   entity.Selectors   `json:"selectors,omitempty"`
	Options     json.RawMessage    `json:"options,omitempty"`
}

// SEORequest is the body of POST /api/seo.
type SEORequest struct {
	URL string `json:"url"`
}

// SubscribeMessage is what a WebSocket client sends to pick a job.
type SubscribeMessage struct {
	Subscribe string `json:"subscribe"`
}

// DecodeOptions overlays raw onto the default options, so keys the client
// leaves out keep their defaults. An absent options object yields nil.
func DecodeOptions(raw json.RawMessage) (*entity.ScrapeOptions, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	opts := entity.DefaultScrapeOptions()
	if err := json.Unmarshal(raw, &opts); err != nil {
		return nil, fmt.Errorf("%w: options: %v", repository.ErrValidation, err)
	}
	return &opts, nil
}
