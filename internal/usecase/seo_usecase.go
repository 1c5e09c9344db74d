package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/scrape-orchestrator/internal/browser"
	"github.com/user/scrape-orchestrator/internal/entity"
	"github.com/user/scrape-orchestrator/internal/repository"
	"github.com/user/scrape-orchestrator/pkg/utils"
)

// SEOAnalyzer reports on-page SEO signals for a URL.
type SEOAnalyzer interface {
	Analyze(ctx context.Context, url string) (*entity.SEOReport, error)
}

type seoUseCase struct {
	pool     *browser.Pool
	proxies  ProxySelector
	headless bool
	logger   *zap.Logger
}

func NewSEOAnalyzer(pool *browser.Pool, proxies ProxySelector, headless bool, logger *zap.Logger) SEOAnalyzer {
	return &seoUseCase{pool: pool, proxies: proxies, headless: headless, logger: logger}
}

func (uc *seoUseCase) Analyze(ctx context.Context, url string) (*entity.SEOReport, error) {
	if _, ok := utils.ParseHTTPURL(url); !ok {
		return nil, fmt.Errorf("%w: %q is not an absolute http(s) url", repository.ErrValidation, url)
	}

	opts := repository.SessionOptions{UserAgent: entity.DefaultUserAgent, Headless: uc.headless}
	if uc.proxies != nil {
		if px, err := uc.proxies.SelectProxy(); err == nil {
			opts.Proxy = px
		}
	}

	sess, err := uc.pool.Acquire(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	if err := sess.Navigate(ctx, url); err != nil {
		if opts.Proxy != nil {
			uc.proxies.RecordFailure(ctx, opts.Proxy, err)
		}
		return nil, navigationError(err)
	}
	if err := sess.WaitStable(ctx, time.Duration(entity.DefaultWaitTimeMS)*time.Millisecond); err != nil {
		return nil, navigationError(err)
	}
	html, err := sess.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}

	report, err := AnalyzeHTML(url, html)
	if err != nil {
		return nil, err
	}
	uc.logger.Info("seo analysis finished", zap.String("url", url), zap.Int("images", report.ImageCount))
	return report, nil
}

// AnalyzeHTML parses a rendered document and extracts its SEO signals.
func AnalyzeHTML(url, html string) (*entity.SEOReport, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	report := &entity.SEOReport{
		URL:        url,
		Title:      strings.TrimSpace(doc.Find("title").First().Text()),
		MetaTags:   make(map[string]string),
		Headings:   map[string][]string{"h1": {}, "h2": {}, "h3": {}},
		AnalyzedAt: time.Now().UTC(),
	}

	doc.Find("meta").Each(func(i int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		property, _ := s.Attr("property")
		content, _ := s.Attr("content")
		key := name
		if property != "" {
			key = property
		}
		if key != "" && content != "" {
			report.MetaTags[key] = content
		}
	})
	report.MetaDescription = report.MetaTags["description"]

	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		report.Canonical = strings.TrimSpace(href)
		if base, ok := utils.ParseHTTPURL(url); ok {
			if abs, err := utils.ToAbsoluteURL(base, report.Canonical); err == nil {
				report.Canonical = abs
			}
		}
	}

	doc.Find("h1, h2, h3").Each(func(i int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		report.Headings[tag] = append(report.Headings[tag], strings.TrimSpace(s.Text()))
	})

	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		report.ImageCount++
		if alt, _ := s.Attr("alt"); strings.TrimSpace(alt) == "" {
			report.ImagesMissingAlt++
		}
	})

	return report, nil
}
