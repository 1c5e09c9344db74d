package entity

import "time"

// ScrapedItem mirrors one row of the `scraped_data` table: the fields found
// on a single page. A field that could not be located is nil, never omitted.
type ScrapedItem struct {
	ID          int64     `json:"id,omitempty"`
	Title       *string   `json:"title"`
	Price       *string   `json:"price"`
	Description *string   `json:"description"`
	SourceURL   string    `json:"source_url"`
	Page        int       `json:"page"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// Set stores v under field f.
func (i *ScrapedItem) Set(f Field, v *string) {
	switch f {
	case FieldTitle:
		i.Title = v
	case FieldPrice:
		i.Price = v
	case FieldDescription:
		i.Description = v
	}
}

// Get returns the value stored under field f.
func (i ScrapedItem) Get(f Field) *string {
	switch f {
	case FieldTitle:
		return i.Title
	case FieldPrice:
		return i.Price
	case FieldDescription:
		return i.Description
	}
	return nil
}

// ScrapeResult is the outcome of running the extraction engine on one job.
type ScrapeResult struct {
	Items      []ScrapedItem `json:"data"`
	TotalPages int           `json:"totalPages"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
}

// Clone returns a deep copy of r.
func (r *ScrapeResult) Clone() *ScrapeResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Items = make([]ScrapedItem, len(r.Items))
	for idx, it := range r.Items {
		c.Items[idx] = it
		for _, f := range Fields {
			if v := it.Get(f); v != nil {
				s := *v
				c.Items[idx].Set(f, &s)
			}
		}
	}
	return &c
}
