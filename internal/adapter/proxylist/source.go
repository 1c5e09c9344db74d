// Package proxylist scrapes public proxy lists published as HTML tables.
package proxylist

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/scrape-orchestrator/internal/entity"
)

// Source fetches proxies from a page whose table rows start with ip and port cells.
type Source struct {
	url    string
	client *http.Client
}

func NewSource(url string, timeout time.Duration) *Source {
	return &Source{url: url, client: &http.Client{Timeout: timeout}}
}

func (s *Source) Fetch(ctx context.Context) ([]entity.Proxy, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", entity.DefaultUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch proxy list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch proxy list: status %d", resp.StatusCode)
	}
	return Parse(resp.Body)
}

// Parse reads every "table tbody tr" row. Rows without a valid IP and port
// are skipped.
func Parse(r io.Reader) ([]entity.Proxy, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse proxy list: %w", err)
	}

	var proxies []entity.Proxy
	seen := make(map[string]bool)
	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		ip := strings.TrimSpace(cells.Eq(0).Text())
		port, err := strconv.Atoi(strings.TrimSpace(cells.Eq(1).Text()))
		if err != nil || port <= 0 || port > 65535 || net.ParseIP(ip) == nil {
			return
		}
		p := entity.Proxy{IP: ip, Port: port, Active: true}
		if seen[p.Addr()] {
			return
		}
		seen[p.Addr()] = true
		proxies = append(proxies, p)
	})
	return proxies, nil
}
