// Package hypixel is the network boundary: it fetches ended-auction
// and live-auction pages from the upstream HTTP API.
package hypixel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"skyblock-ah-tracker/internal/model"
	"skyblock-ah-tracker/pkg/runerror"
)

// Config holds the client's connection values.
type Config struct {
	// EndedURL is the ended-auctions endpoint.
	EndedURL string
	// LiveURL is the live-auctions endpoint, used by snapshots only.
	LiveURL string
	// APIKey is attached as the API-Key header when non-empty. The
	// endpoints answer unauthenticated requests as well.
	APIKey string
	// Timeout bounds each page request.
	Timeout time.Duration
	// Workers bounds the page fan-out after page 0.
	Workers int
}

// Client fetches auction pages. A fetch either returns every page the
// upstream reported or fails as a whole; partially fetched data is
// never returned, since pagination is not consistent once the upstream
// window rolls.
type Client struct {
	http     *http.Client
	endedURL string
	liveURL  string
	apiKey   string
	workers  int
}

// New creates a client with the given configuration.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		endedURL: cfg.EndedURL,
		liveURL:  cfg.LiveURL,
		apiKey:   cfg.APIKey,
		workers:  workers,
	}
}

// EndedResult is one complete ended-auctions fetch.
type EndedResult struct {
	Entries     []model.AuctionEntry
	Pages       int
	LastUpdated time.Time
}

// FetchEndedAuctions fetches every ended-auction page. Page 0
// establishes the page count; remaining pages are fetched with bounded
// concurrency. Any page failure fails the whole fetch.
func (c *Client) FetchEndedAuctions(ctx context.Context) (*EndedResult, error) {
	first, err := c.fetchEndedPage(ctx, 0)
	if err != nil {
		return nil, err
	}

	totalPages := first.TotalPages
	if totalPages <= 0 {
		totalPages = 1
	}

	pages := make([][]model.AuctionEntry, totalPages)
	pages[0] = first.Auctions

	if totalPages > 1 {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			fetchErr error
		)
		sem := make(chan struct{}, c.workers)

		for p := 1; p < totalPages; p++ {
			wg.Add(1)
			go func(page int) {
				defer wg.Done()
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					return
				}

				resp, err := c.fetchEndedPage(ctx, page)
				if err != nil {
					mu.Lock()
					if fetchErr == nil {
						fetchErr = err
						cancel()
					}
					mu.Unlock()
					return
				}
				pages[page] = resp.Auctions
			}(p)
		}
		wg.Wait()

		if fetchErr != nil {
			return nil, fetchErr
		}
	}

	total := 0
	for _, p := range pages {
		total += len(p)
	}
	entries := make([]model.AuctionEntry, 0, total)
	for _, p := range pages {
		entries = append(entries, p...)
	}

	return &EndedResult{
		Entries:     entries,
		Pages:       totalPages,
		LastUpdated: time.UnixMilli(first.LastUpdated).UTC(),
	}, nil
}

func (c *Client) fetchEndedPage(ctx context.Context, page int) (*model.AuctionPage, error) {
	var resp model.AuctionPage
	if err := c.getJSON(ctx, c.endedURL, page, false, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, runerror.Upstream(fmt.Sprintf("ended page %d reported success=false", page), nil)
	}
	return &resp, nil
}

// ActiveResult is one complete live-auctions fetch.
type ActiveResult struct {
	Listings    []model.ActiveListing
	Pages       int
	LastUpdated time.Time
}

// FetchActiveAuctions fetches every live-auction page, requesting only
// fixed-price listings. Failure semantics match FetchEndedAuctions.
func (c *Client) FetchActiveAuctions(ctx context.Context) (*ActiveResult, error) {
	first, err := c.fetchActivePage(ctx, 0)
	if err != nil {
		return nil, err
	}

	totalPages := first.TotalPages
	if totalPages <= 0 {
		totalPages = 1
	}

	pages := make([][]model.ActiveListing, totalPages)
	pages[0] = first.Auctions

	if totalPages > 1 {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			fetchErr error
		)
		sem := make(chan struct{}, c.workers)

		for p := 1; p < totalPages; p++ {
			wg.Add(1)
			go func(page int) {
				defer wg.Done()
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					return
				}

				resp, err := c.fetchActivePage(ctx, page)
				if err != nil {
					mu.Lock()
					if fetchErr == nil {
						fetchErr = err
						cancel()
					}
					mu.Unlock()
					return
				}
				pages[page] = resp.Auctions
			}(p)
		}
		wg.Wait()

		if fetchErr != nil {
			return nil, fetchErr
		}
	}

	total := 0
	for _, p := range pages {
		total += len(p)
	}
	listings := make([]model.ActiveListing, 0, total)
	for _, p := range pages {
		listings = append(listings, p...)
	}

	return &ActiveResult{
		Listings:    listings,
		Pages:       totalPages,
		LastUpdated: time.UnixMilli(first.LastUpdated).UTC(),
	}, nil
}

func (c *Client) fetchActivePage(ctx context.Context, page int) (*model.ActivePage, error) {
	var resp model.ActivePage
	if err := c.getJSON(ctx, c.liveURL, page, true, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, runerror.Upstream(fmt.Sprintf("live page %d reported success=false", page), nil)
	}
	return &resp, nil
}

// getJSON issues one page request and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, baseURL string, page int, binOnly bool, out any) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return runerror.Upstream("endpoint URL is not parseable", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	if binOnly {
		q.Set("bin", "true")
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return runerror.Network("failed to build request", err)
	}
	if c.apiKey != "" {
		req.Header.Set("API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return runerror.Network(fmt.Sprintf("page %d request failed", page), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return runerror.UpstreamStatus(resp.StatusCode, fmt.Sprintf("page %d returned status %d", page, resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return runerror.Upstream(fmt.Sprintf("page %d body is not valid JSON", page), err)
	}
	return nil
}
