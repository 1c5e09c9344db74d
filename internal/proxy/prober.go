package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/user/scrape-orchestrator/internal/entity"
)

// HTTPProber issues a GET to a known URL through the proxy.
type HTTPProber struct {
	url     string
	timeout time.Duration
}

func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{url: url, timeout: timeout}
}

func (p *HTTPProber) Probe(ctx context.Context, px entity.Proxy) error {
	client := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(px.URL())},
		Timeout:   p.timeout,
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", px.Addr(), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe %s: status %d", px.Addr(), resp.StatusCode)
	}
	return nil
}
