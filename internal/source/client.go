package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"readcast/internal/config"
	"readcast/internal/services"
)

// Article is one saved item returned by the read-later service.
type Article struct {
	ID      string
	Title   string
	Author  string
	URL     string
	Summary string
	SavedAt time.Time
}

// Page is one batch of saved articles plus the cursor for the next batch. An
// empty NextCursor means the listing is exhausted.
type Page struct {
	Articles   []Article
	NextCursor string
}

// Lister defines the discovery operations the pipeline uses. updatedAfter is
// the cross-run watermark; pageCursor only pages within a single listing and
// must never be persisted across runs.
type Lister interface {
	ListSaved(ctx context.Context, updatedAfter time.Time, pageCursor string) (*Page, error)
	FetchContent(ctx context.Context, articleID string) (string, error)
}

// Client talks to a Readwise-Reader-compatible saved-article API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	// Rate-limit responses are retried after the server-provided delay, but
	// never more than this many times nor longer than maxRetryWait per wait.
	maxRateLimitRetries int
	maxRetryWait        time.Duration
}

var _ Lister = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithMaxRetryWait caps how long a single rate-limit wait may last.
func WithMaxRetryWait(wait time.Duration) Option {
	return func(c *Client) {
		if wait > 0 {
			c.maxRetryWait = wait
		}
	}
}

// New creates a saved-article client from the source configuration.
func New(cfg config.Source, opts ...Option) (*Client, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("source token required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("source base url required")
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &Client{
		baseURL:             strings.TrimRight(baseURL, "/"),
		token:               token,
		httpClient:          &http.Client{Timeout: timeout},
		maxRateLimitRetries: 2,
		maxRetryWait:        time.Minute,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type listResponse struct {
	Count          int         `json:"count"`
	NextPageCursor string      `json:"nextPageCursor"`
	Results        []listEntry `json:"results"`
}

type listEntry struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	SourceURL   string `json:"source_url"`
	Summary     string `json:"summary"`
	SavedAt     string `json:"saved_at"`
	HTMLContent string `json:"html_content"`
}

// ListSaved fetches one page of saved articles. A non-zero updatedAfter
// restricts the listing to items the service touched after that instant; an
// exhausted listing's page cursor is useless on a later call, so resuming
// across runs always goes through updatedAfter. Articles without a source URL
// are dropped; missing titles and authors get placeholder values so
// downstream rendering never sees empty metadata.
func (c *Client) ListSaved(ctx context.Context, updatedAfter time.Time, pageCursor string) (*Page, error) {
	params := url.Values{}
	params.Set("category", "article")
	params.Set("location", "new")
	if !updatedAfter.IsZero() {
		params.Set("updatedAfter", updatedAfter.UTC().Format(time.RFC3339))
	}
	if pageCursor != "" {
		params.Set("pageCursor", pageCursor)
	}

	payload, err := c.getList(ctx, params)
	if err != nil {
		return nil, err
	}

	page := &Page{NextCursor: payload.NextPageCursor}
	for _, entry := range payload.Results {
		if strings.TrimSpace(entry.SourceURL) == "" {
			continue
		}
		article := Article{
			ID:      entry.ID,
			Title:   strings.TrimSpace(entry.Title),
			Author:  strings.TrimSpace(entry.Author),
			URL:     entry.SourceURL,
			Summary: strings.TrimSpace(entry.Summary),
		}
		if article.Title == "" {
			article.Title = "Untitled"
		}
		if article.Author == "" {
			article.Author = "Unknown"
		}
		if saved, parseErr := time.Parse(time.RFC3339, entry.SavedAt); parseErr == nil {
			article.SavedAt = saved
		}
		page.Articles = append(page.Articles, article)
	}
	return page, nil
}

// FetchContent retrieves the full HTML body of one saved article.
func (c *Client) FetchContent(ctx context.Context, articleID string) (string, error) {
	articleID = strings.TrimSpace(articleID)
	if articleID == "" {
		return "", errors.New("article id required")
	}
	params := url.Values{}
	params.Set("id", articleID)
	params.Set("withHtmlContent", "true")

	payload, err := c.getList(ctx, params)
	if err != nil {
		return "", err
	}
	if len(payload.Results) == 0 {
		return "", services.Wrap(services.ErrNotFound, "source", "fetch content",
			fmt.Sprintf("article %s not found", articleID), nil)
	}
	content := payload.Results[0].HTMLContent
	if strings.TrimSpace(content) == "" {
		return "", services.Wrap(services.ErrTransient, "source", "fetch content",
			fmt.Sprintf("article %s has no content yet", articleID), nil)
	}
	return content, nil
}

func (c *Client) getList(ctx context.Context, params url.Values) (*listResponse, error) {
	endpoint := c.baseURL + "/list/?" + params.Encode()

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Token "+c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "source", "list", "request failed", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			var payload listResponse
			decodeErr := json.NewDecoder(resp.Body).Decode(&payload)
			resp.Body.Close()
			if decodeErr != nil {
				return nil, services.Wrap(services.ErrTransient, "source", "list", "decode response", decodeErr)
			}
			return &payload, nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			return nil, services.Wrap(services.ErrAuth, "source", "list",
				fmt.Sprintf("service returned %d", resp.StatusCode), nil)
		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp.Header, c.maxRetryWait)
			resp.Body.Close()
			if attempt >= c.maxRateLimitRetries {
				return nil, services.Wrap(services.ErrTransient, "source", "list",
					"rate limited and retry budget exhausted", nil)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		default:
			resp.Body.Close()
			return nil, services.Wrap(services.ErrTransient, "source", "list",
				fmt.Sprintf("service returned %d", resp.StatusCode), nil)
		}
	}
}

// retryAfter reads a Retry-After header in seconds, clamped to the cap.
func retryAfter(header http.Header, cap time.Duration) time.Duration {
	wait := 5 * time.Second
	if raw := header.Get("Retry-After"); raw != "" {
		if seconds, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && seconds > 0 {
			wait = time.Duration(seconds) * time.Second
		}
	}
	if wait > cap {
		wait = cap
	}
	return wait
}
