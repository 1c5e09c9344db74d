package entity

import "time"

// SEOReport holds on-page SEO signals extracted from a rendered page.
type SEOReport struct {
	URL              string              `json:"url"`
	Title            string              `json:"title"`
	MetaDescription  string              `json:"meta_description"`
	Canonical        string              `json:"canonical,omitempty"`
	MetaTags         map[string]string   `json:"meta_tags"`
	Headings         map[string][]string `json:"headings"`
	ImageCount       int                 `json:"image_count"`
	ImagesMissingAlt int                 `json:"images_missing_alt"`
	AnalyzedAt       time.Time           `json:"analyzed_at"`
}
