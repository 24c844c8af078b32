// Package scraper implements the fetch.Fetcher interface against the
// browser-automation scraper sidecar's HTTP API.
package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/heartmarshall/auctionwatch/internal/domain"
	"github.com/heartmarshall/auctionwatch/internal/fetch"
)

// Client talks to the scraper sidecar. The sidecar owns the browser session
// and the auction site's wire format; this client only sees its JSON API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// New creates a Client for the given sidecar base URL. The http.Client
// carries no timeout of its own: each call's context sets the deadline, so
// price checks and full detail scrapes can use different budgets.
func New(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		log:        logger.With("adapter", "scraper"),
	}
}

// ListListings fetches one page of listing summaries for a category.
func (c *Client) ListListings(ctx context.Context, category string, page int) ([]fetch.Summary, error) {
	q := url.Values{}
	q.Set("category", category)
	q.Set("page", strconv.Itoa(page))
	reqURL := c.baseURL + "/listings?" + q.Encode()

	body, err := c.get(ctx, "listings", reqURL)
	if err != nil {
		return nil, err
	}

	var rows []listingRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fetch.NewError(fetch.CodeUpstream, "listings", fmt.Errorf("decode json: %w", err))
	}

	summaries := make([]fetch.Summary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, row.toSummary())
	}

	c.log.DebugContext(ctx, "listings page fetched",
		slog.String("category", category),
		slog.Int("page", page),
		slog.Int("count", len(summaries)),
	)

	return summaries, nil
}

// FetchDetail fetches the full event snapshot for one reference.
// A sidecar 404 becomes fetch.CodeNotFound.
func (c *Client) FetchDetail(ctx context.Context, reference string) (domain.Event, error) {
	reqURL := c.baseURL + "/listings/" + url.PathEscape(reference)

	body, err := c.get(ctx, "detail", reqURL)
	if err != nil {
		return domain.Event{}, err
	}

	var row detailRow
	if err := json.Unmarshal(body, &row); err != nil {
		return domain.Event{}, fetch.NewError(fetch.CodeUpstream, "detail", fmt.Errorf("decode json: %w", err))
	}

	return row.toEvent(), nil
}

// get executes a GET with one retry on 5xx or network errors and maps the
// outcome into typed fetch failures.
func (c *Client) get(ctx context.Context, op, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fetch.NewError(fetch.CodeUpstream, op, fmt.Errorf("create request: %w", err))
	}

	resp, err := c.doWithRetry(ctx, req, op)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fetch.NewError(fetch.CodeTimeout, op, err)
		}
		return nil, fetch.NewError(fetch.CodeUpstream, op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fetch.NewError(fetch.CodeNotFound, op, nil)
	case resp.StatusCode != http.StatusOK:
		return nil, fetch.NewError(fetch.CodeUpstream, op, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fetch.NewError(fetch.CodeUpstream, op, fmt.Errorf("read body: %w", err))
	}

	return body, nil
}

// doWithRetry executes the request with a single retry on 5xx or network
// errors. Context cancellation suppresses the retry.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request, op string) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)

	shouldRetry := err != nil || (resp != nil && resp.StatusCode >= 500)
	if !shouldRetry {
		return resp, err
	}

	if ctx.Err() != nil {
		if err == nil {
			resp.Body.Close()
		}
		return nil, ctx.Err()
	}

	reason := "network error"
	if err == nil && resp != nil {
		reason = fmt.Sprintf("status %d", resp.StatusCode)
	}
	c.log.WarnContext(ctx, "scraper retry", slog.String("op", op), slog.String("reason", reason))

	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	time.Sleep(250 * time.Millisecond)

	return c.httpClient.Do(req)
}
