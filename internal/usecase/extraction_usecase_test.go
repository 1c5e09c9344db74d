package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/scrape-orchestrator/internal/browser"
	"github.com/user/scrape-orchestrator/internal/browser/browsertest"
	"github.com/user/scrape-orchestrator/internal/entity"
	"github.com/user/scrape-orchestrator/internal/proxy"
	"github.com/user/scrape-orchestrator/internal/repository"
	"github.com/user/scrape-orchestrator/internal/resolver"
)

const next = `a[rel="next"]`

func TestExtractFollowsPagination(t *testing.T) {
	driver := browsertest.NewDriver()
	driver.Pages["https://shop.example.com/p1"] = &browsertest.Page{
		Text:         map[string]string{"h1": "Kettle One", ".price": "$10"},
		NextSelector: next,
		Next:         "https://shop.example.com/p2",
	}
	driver.Pages["https://shop.example.com/p2"] = &browsertest.Page{
		Text: map[string]string{"h1": "Kettle Two", ".price": "$12"},
	}

	job := pendingJob("a", "https://shop.example.com/p1")
	job.SearchTerms.Price = "$"
	job.Selectors[entity.FieldPrice] = ".price"
	job.Options.MaxPages = 2

	res, err := newExtractor(driver).Extract(context.Background(), job)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 2, res.TotalPages)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "Kettle One", *res.Items[0].Title)
	assert.Equal(t, "$12", *res.Items[1].Price)
	assert.Equal(t, 2, res.Items[1].Page)
	assert.Nil(t, res.Items[0].Description, "description was not requested")
	assert.Equal(t, 0, driver.Open(), "session is closed after the job")
}

func TestExtractStopsAtMaxPages(t *testing.T) {
	driver := browsertest.NewDriver()
	driver.Pages["https://shop.example.com/p1"] = &browsertest.Page{
		Text:         map[string]string{"h1": "One"},
		NextSelector: next,
		Next:         "https://shop.example.com/p2",
	}
	driver.Pages["https://shop.example.com/p2"] = &browsertest.Page{Text: map[string]string{"h1": "Two"}}

	res, err := newExtractor(driver).Extract(context.Background(), pendingJob("a", "https://shop.example.com/p1"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalPages)
}

func TestExtractMissingFieldIsNull(t *testing.T) {
	driver := browsertest.NewDriver()
	driver.Pages["https://shop.example.com/"] = &browsertest.Page{
		Text: map[string]string{"h1": "Kettle"},
	}

	job := pendingJob("a", "https://shop.example.com/")
	job.SearchTerms.Price = "$"
	job.Selectors[entity.FieldPrice] = ".does-not-exist"
	job.Options.Concurrent = true

	res, err := newExtractor(driver).Extract(context.Background(), job)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Kettle", *res.Items[0].Title)
	assert.Nil(t, res.Items[0].Price)
	assert.True(t, res.Success)
}

func TestExtractFallsBackToResolver(t *testing.T) {
	driver := browsertest.NewDriver()
	driver.Pages["https://shop.example.com/"] = &browsertest.Page{
		HTML: `<html><body><h1>Electric Kettle 1.7L</h1><span class="price">€39,90</span></body></html>`,
	}

	job := pendingJob("a", "https://shop.example.com/")
	job.Selectors = nil
	job.SearchTerms.Price = "39"

	res, err := newExtractor(driver).Extract(context.Background(), job)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.NotNil(t, res.Items[0].Title)
	assert.Equal(t, "Electric Kettle 1.7L", *res.Items[0].Title)
	require.NotNil(t, res.Items[0].Price)
	assert.Equal(t, "€39,90", *res.Items[0].Price)
}

func TestExtractFailsAfterRetries(t *testing.T) {
	driver := browsertest.NewDriver()
	url := "https://shop.example.com/"
	driver.Pages[url] = &browsertest.Page{Text: map[string]string{"h1": "Kettle"}}
	boom := errors.New("net::ERR_CONNECTION_REFUSED")
	driver.NavigateErrs[url] = []error{boom, boom, boom}

	res, err := newExtractor(driver).Extract(context.Background(), pendingJob("a", url))
	require.Error(t, err)

	var exErr *repository.ExtractionError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, 1, exErr.Page)
	assert.ErrorIs(t, err, repository.ErrProxyFailure)
	assert.False(t, res.Success)
	assert.Equal(t, 3, driver.Navigations())
}

func TestExtractRecoversWithinRetryBudget(t *testing.T) {
	driver := browsertest.NewDriver()
	url := "https://shop.example.com/"
	driver.Pages[url] = &browsertest.Page{Text: map[string]string{"h1": "Kettle"}}
	driver.NavigateErrs[url] = []error{repository.ErrNavigationFailed, repository.ErrNavigationFailed}

	res, err := newExtractor(driver).Extract(context.Background(), pendingJob("a", url))
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)
	assert.Equal(t, 3, driver.Navigations())
}

func TestExtractRetryResumesOnCurrentPage(t *testing.T) {
	driver := browsertest.NewDriver()
	driver.Pages["https://shop.example.com/p1"] = &browsertest.Page{
		Text:         map[string]string{"h1": "One"},
		NextSelector: next,
		Next:         "https://shop.example.com/p2",
	}
	driver.Pages["https://shop.example.com/p2"] = &browsertest.Page{Text: map[string]string{"h1": "Two"}}
	driver.ClickErrs["https://shop.example.com/p1"] = []error{errors.New("click intercepted")}

	job := pendingJob("a", "https://shop.example.com/p1")
	job.Options.MaxPages = 3

	res, err := newExtractor(driver).Extract(context.Background(), job)
	require.NoError(t, err)
	require.Len(t, res.Items, 2, "page one is not recorded twice")
	assert.Equal(t, "One", *res.Items[0].Title)
	assert.Equal(t, "Two", *res.Items[1].Title)
	assert.Equal(t, 1, driver.Navigations(), "retry does not restart from page one")
}

func TestExtractWithoutProxyWhenOptional(t *testing.T) {
	driver := browsertest.NewDriver()
	driver.Pages["https://shop.example.com/"] = &browsertest.Page{Text: map[string]string{"h1": "Kettle"}}

	_, err := newExtractor(driver).Extract(context.Background(), pendingJob("a", "https://shop.example.com/"))
	require.NoError(t, err)
	assert.Nil(t, driver.LastOptions().Proxy)
	assert.Equal(t, entity.DefaultUserAgent, driver.LastOptions().UserAgent)
}

func TestExtractBackoffDoubles(t *testing.T) {
	driver := browsertest.NewDriver()
	url := "https://shop.example.com/"
	driver.Pages[url] = &browsertest.Page{Text: map[string]string{"h1": "Kettle"}}
	driver.NavigateErrs[url] = []error{repository.ErrNavigationFailed, repository.ErrNavigationFailed, repository.ErrNavigationFailed}

	log := zap.NewNop()
	ex := NewExtractor(browser.NewPool(driver, 1, log), nil, resolver.New(log), ExtractionConfig{}, log).(*extractionUseCase)
	var slept []time.Duration
	ex.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	job := pendingJob("a", url)
	job.Options.RetryAttempts = 4
	_, err := ex.Extract(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, slept)
}

func TestExtractNoSleepAfterLastAttempt(t *testing.T) {
	driver := browsertest.NewDriver()
	url := "https://shop.example.com/"
	driver.Pages[url] = &browsertest.Page{Text: map[string]string{"h1": "Kettle"}}
	driver.NavigateErrs[url] = []error{repository.ErrNavigationFailed, repository.ErrNavigationFailed}

	log := zap.NewNop()
	ex := NewExtractor(browser.NewPool(driver, 1, log), nil, resolver.New(log), ExtractionConfig{}, log).(*extractionUseCase)
	sleeps := 0
	ex.sleep = func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}

	job := pendingJob("a", url)
	job.Options.RetryAttempts = 2
	_, err := ex.Extract(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, 1, sleeps)
}

type noopProber struct{}

func (noopProber) Probe(context.Context, entity.Proxy) error { return nil }

func TestExtractDemotesFailingProxy(t *testing.T) {
	ctx := context.Background()
	driver := browsertest.NewDriver()
	url := "https://shop.example.com/"
	driver.Pages[url] = &browsertest.Page{Text: map[string]string{"h1": "Kettle"}}
	refused := errors.New("net::ERR_PROXY_CONNECTION_FAILED")
	driver.NavigateErrs[url] = []error{refused, refused, refused}

	log := zap.NewNop()
	proxies := proxy.NewManager(nil, noopProber{}, log)
	require.Equal(t, 1, proxies.Add(ctx, []entity.Proxy{{IP: "10.0.0.1", Port: 8080}}))

	ex := NewExtractor(browser.NewPool(driver, 1, log), proxies, resolver.New(log),
		ExtractionConfig{FieldTimeout: 10 * time.Millisecond, BaseBackoff: time.Millisecond}, log)

	_, err := ex.Extract(ctx, pendingJob("a", url))
	require.ErrorIs(t, err, repository.ErrProxyFailure)
	require.NotNil(t, driver.LastOptions().Proxy)
	assert.Equal(t, "10.0.0.1:8080", driver.LastOptions().Proxy.Addr())

	_, active := proxies.Stats()
	assert.Equal(t, 0, active, "proxy is out of rotation after the failed job")
	_, err = proxies.SelectProxy()
	assert.ErrorIs(t, err, repository.ErrNoProxyAvailable)
}

func TestExtractKeepsProxyOnPageError(t *testing.T) {
	ctx := context.Background()
	driver := browsertest.NewDriver()
	url := "https://shop.example.com/"
	driver.Pages[url] = &browsertest.Page{Text: map[string]string{"h1": "Kettle"}}
	driver.NavigateErrs[url] = []error{repository.ErrNavigationFailed, repository.ErrNavigationFailed, repository.ErrNavigationFailed}

	log := zap.NewNop()
	proxies := proxy.NewManager(nil, noopProber{}, log)
	proxies.Add(ctx, []entity.Proxy{{IP: "10.0.0.1", Port: 8080}})

	ex := NewExtractor(browser.NewPool(driver, 1, log), proxies, resolver.New(log),
		ExtractionConfig{FieldTimeout: 10 * time.Millisecond, BaseBackoff: time.Millisecond}, log)

	_, err := ex.Extract(ctx, pendingJob("a", url))
	require.Error(t, err)
	_, active := proxies.Stats()
	assert.Equal(t, 1, active)
}
