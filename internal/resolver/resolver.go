// Package resolver guesses where a field lives on a page when the caller did
// not supply a locator. Its answers are heuristic and never authoritative.
package resolver

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/scrape-orchestrator/internal/entity"
)

// ErrNoMatch is returned when no candidate scored above the threshold.
var ErrNoMatch = errors.New("no matching selector")

const (
	// MinConfidence is the score a candidate must exceed to be returned.
	MinConfidence = 0.3

	titleScore = 0.8
	priceScore = 0.9
)

var priceRe = regexp.MustCompile(`[$€£¥₹]\s?\d[\d.,]*|\d[\d.,]*\s?(?:[$€£¥₹]|USD|EUR|GBP)`)

var candidates = map[entity.Field][]string{
	entity.FieldTitle: {
		"h1",
		"[itemprop='name']",
		".product-title",
		".product-name",
		"[class*='title']",
		"h2",
		"title",
	},
	entity.FieldPrice: {
		"[itemprop='price']",
		".price",
		"[class*='price']",
		"[data-price]",
		".amount",
		"span",
	},
	entity.FieldDescription: {
		"[itemprop='description']",
		".product-description",
		".description",
		"[class*='description']",
		"meta[name='description']",
		"p",
	},
}

// Match is a scored element. Index is the element's position among the
// matches of Selector.
type Match struct {
	Selector string
	Index    int
	Text     string
	Score    float64
}

// Resolver ranks candidate locators for a field against page HTML.
type Resolver struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Score computes the confidence that text is the value of field given term.
func Score(field entity.Field, term, text string) float64 {
	switch field {
	case entity.FieldTitle:
		if term != "" && strings.Contains(strings.ToLower(text), strings.ToLower(term)) {
			return titleScore
		}
		return 0
	case entity.FieldPrice:
		if priceRe.MatchString(text) {
			return priceScore
		}
		return 0
	case entity.FieldDescription:
		return Similarity(term, text)
	}
	return 0
}

// Rank scores every element matched by every candidate locator for field and
// returns them sorted by descending score. Ties keep candidate order.
func (r *Resolver) Rank(html string, field entity.Field, term string) ([]Match, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}

	var matches []Match
	for _, sel := range candidates[field] {
		doc.Find(sel).EachWithBreak(func(i int, s *goquery.Selection) bool {
			text := strings.TrimSpace(s.Text())
			if goquery.NodeName(s) == "meta" {
				text, _ = s.Attr("content")
				text = strings.TrimSpace(text)
			}
			if text == "" {
				return true
			}
			matches = append(matches, Match{
				Selector: sel,
				Index:    i,
				Text:     text,
				Score:    Score(field, term, text),
			})
			// Broad candidates such as "span" or "p" can match thousands of nodes.
			return i < 50
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches, nil
}

// Resolve returns the best candidate for field, or ErrNoMatch when nothing
// scored above MinConfidence.
func (r *Resolver) Resolve(html string, field entity.Field, term string) (Match, error) {
	matches, err := r.Rank(html, field, term)
	if err != nil {
		return Match{}, err
	}
	if len(matches) == 0 || matches[0].Score <= MinConfidence {
		return Match{}, ErrNoMatch
	}

	best := matches[0]
	r.logger.Debug("resolved selector",
		zap.String("field", string(field)),
		zap.String("selector", best.Selector),
		zap.Int("index", best.Index),
		zap.Float64("score", best.Score),
	)
	return best, nil
}
