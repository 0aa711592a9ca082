// Package reddit talks to the authenticated Reddit API: subreddit search,
// comments, link flair and removals.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://oauth.reddit.com"
	defaultUserAgent = "flaircheck/1.0"
	defaultThrottle  = 1 * time.Second
	maxErrorBody     = 512
)

// Post is a link submission as seen by the moderation passes.
type Post struct {
	Name       string // fullname, e.g. "t3_abc123"; unique and stable
	ID         string
	Title      string
	Subreddit  string
	CreatedAt  time.Time
	FlairClass string
	FlairText  string
}

// SearchParams describes one page request against /r/{subreddit}/search.
type SearchParams struct {
	Subreddit string
	Query     string
	Limit     int    // page size hint, at most 100
	After     string // cursor from the previous Listing; empty for the first page
	Count     int    // items already seen before After
}

// Listing is one page of search results. An empty After means no further pages.
type Listing struct {
	Posts []Post
	After string
}

// APIError is returned when Reddit answers with a non-2xx status or a json.errors payload.
type APIError struct {
	Endpoint   string
	StatusCode int
	Messages   []string
}

func (e *APIError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("reddit %s: %s", e.Endpoint, strings.Join(e.Messages, "; "))
	}
	return fmt.Sprintf("reddit %s: status %d", e.Endpoint, e.StatusCode)
}

// Client is safe for concurrent use. All requests share one rate limiter.
type Client struct {
	client    *http.Client
	baseURL   string
	userAgent string
	limiter   *rate.Limiter
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL   string
	UserAgent string
	Throttle  time.Duration // minimum spacing between requests
}

// New creates a client on top of an already authenticated HTTP client
// (see NewOAuthHTTPClient).
func New(httpClient *http.Client, opts Options) (*Client, error) {
	if httpClient == nil {
		return nil, errors.New("reddit: http client is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Throttle <= 0 {
		opts.Throttle = defaultThrottle
	}
	return &Client{
		client:    httpClient,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		limiter:   rate.NewLimiter(rate.Every(opts.Throttle), 1),
	}, nil
}

// Search fetches one page of newest-first results restricted to the subreddit.
func (c *Client) Search(ctx context.Context, params SearchParams) (Listing, error) {
	if params.Subreddit == "" {
		return Listing{}, errors.New("reddit: subreddit is required")
	}

	q := url.Values{}
	q.Set("q", params.Query)
	q.Set("restrict_sr", "true")
	q.Set("sort", "new")
	q.Set("raw_json", "1")
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.After != "" {
		q.Set("after", params.After)
		q.Set("count", strconv.Itoa(params.Count))
	}

	endpoint := fmt.Sprintf("/r/%s/search", url.PathEscape(params.Subreddit))
	resp, err := c.do(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return Listing{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return Listing{}, fmt.Errorf("decode %s: %w", endpoint, err)
	}

	return listingFromResponse(listing), nil
}

// Comment replies to the thing (post or comment) with the given markdown text.
func (c *Client) Comment(ctx context.Context, thingID, text string) error {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("text", text)
	form.Set("thing_id", thingID)
	return c.post(ctx, "/api/comment", form)
}

// SetFlair sets the link flair of a post.
func (c *Client) SetFlair(ctx context.Context, subreddit, link, class, text string) error {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("css_class", class)
	form.Set("link", link)
	form.Set("text", text)
	return c.post(ctx, fmt.Sprintf("/r/%s/api/flair", url.PathEscape(subreddit)), form)
}

// Remove removes a post from the subreddit as a moderator.
func (c *Client) Remove(ctx context.Context, id string, spam bool) error {
	form := url.Values{}
	form.Set("id", id)
	form.Set("spam", strconv.FormatBool(spam))
	return c.post(ctx, "/api/remove", form)
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) error {
	resp, err := c.do(ctx, http.MethodPost, endpoint, form)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", endpoint, err)
	}
	return checkJSONErrors(endpoint, resp.StatusCode, body)
}

func (c *Client) do(ctx context.Context, method, endpoint string, form url.Values) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("throttle %s: %w", endpoint, err)
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, trimQuery(endpoint), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		apiErr := &APIError{Endpoint: trimQuery(endpoint), StatusCode: resp.StatusCode}
		if msg := strings.TrimSpace(string(snippet)); msg != "" && !strings.HasPrefix(msg, "<") {
			apiErr.Messages = []string{msg}
		}
		return nil, apiErr
	}

	return resp, nil
}

// checkJSONErrors inspects an api_type=json response for {"json":{"errors":[...]}}.
func checkJSONErrors(endpoint string, status int, body []byte) error {
	if len(body) == 0 {
		return nil
	}
	var payload struct {
		JSON struct {
			Errors [][]any `json:"errors"`
		} `json:"json"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		// /api/remove answers with an empty object; anything non-JSON after a 2xx is accepted.
		return nil
	}
	if len(payload.JSON.Errors) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(payload.JSON.Errors))
	for _, e := range payload.JSON.Errors {
		parts := make([]string, 0, len(e))
		for _, p := range e {
			if s, ok := p.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		msgs = append(msgs, strings.Join(parts, ": "))
	}
	return &APIError{Endpoint: endpoint, StatusCode: status, Messages: msgs}
}

func trimQuery(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}

func listingFromResponse(listing redditListing) Listing {
	posts := make([]Post, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		p := child.Data
		name := p.Name
		if name == "" && p.ID != "" {
			name = "t3_" + p.ID
		}
		posts = append(posts, Post{
			Name:       name,
			ID:         p.ID,
			Title:      p.Title,
			Subreddit:  p.Subreddit,
			CreatedAt:  time.Unix(int64(p.CreatedUTC), 0).UTC(),
			FlairClass: p.LinkFlairCSSClass,
			FlairText:  p.LinkFlairText,
		})
	}
	return Listing{Posts: posts, After: listing.Data.After}
}

type redditListing struct {
	Data struct {
		Children []redditChild `json:"children"`
		After    string        `json:"after"`
	} `json:"data"`
}

type redditChild struct {
	Data redditPost `json:"data"`
}

type redditPost struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Title             string  `json:"title"`
	Subreddit         string  `json:"subreddit"`
	CreatedUTC        float64 `json:"created_utc"`
	LinkFlairCSSClass string  `json:"link_flair_css_class"`
	LinkFlairText     string  `json:"link_flair_text"`
}
