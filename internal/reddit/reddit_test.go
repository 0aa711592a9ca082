package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func makeListing(after string, posts ...redditPost) redditListing {
	var listing redditListing
	for _, p := range posts {
		listing.Data.Children = append(listing.Data.Children, redditChild{Data: p})
	}
	listing.Data.After = after
	return listing
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func clientWithTransport(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	c, err := New(&http.Client{Transport: rt}, Options{
		BaseURL:   "https://reddit.test",
		UserAgent: "flaircheck-test/1.0",
		Throttle:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}
	return string(b)
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func readForm(t *testing.T, r *http.Request) url.Values {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		t.Fatalf("parse form: %v", err)
	}
	return form
}

func TestNew_NilClient(t *testing.T) {
	if _, err := New(nil, Options{}); err == nil {
		t.Fatal("expected error for nil http client")
	}
}

func TestSearch_RequestShape(t *testing.T) {
	c := clientWithTransport(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/r/uhcmatches/search" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if ua := r.Header.Get("User-Agent"); ua != "flaircheck-test/1.0" {
			t.Errorf("user-agent = %q", ua)
		}
		q := r.URL.Query()
		want := map[string]string{
			"q":           "-flair:upcoming ",
			"restrict_sr": "true",
			"sort":        "new",
			"limit":       "70",
			"after":       "t3_prev",
			"count":       "100",
		}
		for k, v := range want {
			if got := q.Get(k); got != v {
				t.Errorf("query %s = %q, want %q", k, got, v)
			}
		}
		return response(http.StatusOK, mustJSON(t, makeListing(""))), nil
	})

	_, err := c.Search(context.Background(), SearchParams{
		Subreddit: "uhcmatches",
		Query:     "-flair:upcoming ",
		Limit:     70,
		After:     "t3_prev",
		Count:     100,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
}

func TestSearch_FirstPageOmitsCursor(t *testing.T) {
	c := clientWithTransport(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Query().Has("after") || r.URL.Query().Has("count") {
			t.Errorf("first page should not send after/count: %s", r.URL.RawQuery)
		}
		return response(http.StatusOK, mustJSON(t, makeListing(""))), nil
	})
	if _, err := c.Search(context.Background(), SearchParams{Subreddit: "sub", Query: "q", Limit: 10}); err != nil {
		t.Fatalf("search: %v", err)
	}
}

func TestSearch_ParsesListing(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := clientWithTransport(t, func(_ *http.Request) (*http.Response, error) {
		listing := makeListing("t3_next",
			redditPost{
				ID:                "abc",
				Name:              "t3_abc",
				Title:             "Mar 05 14:00 UTC [EU] - Game",
				Subreddit:         "uhcmatches",
				CreatedUTC:        float64(created.Unix()),
				LinkFlairCSSClass: "upcoming_match",
				LinkFlairText:     "Upcoming Match",
			},
			redditPost{ID: "def", Title: "No fullname", CreatedUTC: float64(created.Unix())},
		)
		return response(http.StatusOK, mustJSON(t, listing)), nil
	})

	listing, err := c.Search(context.Background(), SearchParams{Subreddit: "uhcmatches", Query: "q"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if listing.After != "t3_next" {
		t.Errorf("after = %q, want t3_next", listing.After)
	}
	if len(listing.Posts) != 2 {
		t.Fatalf("got %d posts, want 2", len(listing.Posts))
	}

	p := listing.Posts[0]
	if p.Name != "t3_abc" || p.ID != "abc" {
		t.Errorf("identity = %q/%q", p.Name, p.ID)
	}
	if !p.CreatedAt.Equal(created) {
		t.Errorf("created = %v, want %v", p.CreatedAt, created)
	}
	if p.FlairClass != "upcoming_match" || p.FlairText != "Upcoming Match" {
		t.Errorf("flair = %q/%q", p.FlairClass, p.FlairText)
	}
	if listing.Posts[1].Name != "t3_def" {
		t.Errorf("fallback fullname = %q, want t3_def", listing.Posts[1].Name)
	}
}

func TestSearch_EndOfData(t *testing.T) {
	c := clientWithTransport(t, func(_ *http.Request) (*http.Response, error) {
		return response(http.StatusOK, `{"data":{"children":[],"after":null}}`), nil
	})
	listing, err := c.Search(context.Background(), SearchParams{Subreddit: "sub"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if listing.After != "" || len(listing.Posts) != 0 {
		t.Errorf("listing = %+v, want empty", listing)
	}
}

func TestSearch_APIError(t *testing.T) {
	c := clientWithTransport(t, func(_ *http.Request) (*http.Response, error) {
		return response(http.StatusTooManyRequests, ""), nil
	})
	_, err := c.Search(context.Background(), SearchParams{Subreddit: "sub"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
	if apiErr.Endpoint != "/r/sub/search" {
		t.Errorf("endpoint = %q, want query stripped", apiErr.Endpoint)
	}
}

func TestSearch_MalformedJSON(t *testing.T) {
	c := clientWithTransport(t, func(_ *http.Request) (*http.Response, error) {
		return response(http.StatusOK, "{{{not json"), nil
	})
	if _, err := c.Search(context.Background(), SearchParams{Subreddit: "sub"}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSearch_TransportError(t *testing.T) {
	c := clientWithTransport(t, func(_ *http.Request) (*http.Response, error) {
		return nil, errors.New("connection reset")
	})
	_, err := c.Search(context.Background(), SearchParams{Subreddit: "sub"})
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("err = %v, want transport error", err)
	}
}

func TestComment(t *testing.T) {
	c := clientWithTransport(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/comment" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		form := readForm(t, r)
		if form.Get("text") != "invalid title format" || form.Get("thing_id") != "t3_1" || form.Get("api_type") != "json" {
			t.Errorf("form = %v", form)
		}
		return response(http.StatusOK, `{"json":{"errors":[]}}`), nil
	})
	if err := c.Comment(context.Background(), "t3_1", "invalid title format"); err != nil {
		t.Fatalf("comment: %v", err)
	}
}

func TestComment_JSONErrors(t *testing.T) {
	c := clientWithTransport(t, func(_ *http.Request) (*http.Response, error) {
		return response(http.StatusOK, `{"json":{"errors":[["RATELIMIT","you are doing that too much","ratelimit"]]}}`), nil
	})
	err := c.Comment(context.Background(), "t3_1", "text")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if !strings.Contains(apiErr.Error(), "RATELIMIT") {
		t.Errorf("error = %q, want RATELIMIT", apiErr.Error())
	}
}

func TestSetFlair(t *testing.T) {
	c := clientWithTransport(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/r/uhcmatches/api/flair" {
			t.Errorf("path = %q", r.URL.Path)
		}
		form := readForm(t, r)
		if form.Get("css_class") != "upcoming_match" || form.Get("link") != "t3_1" || form.Get("text") != "upcoming match" {
			t.Errorf("form = %v", form)
		}
		return response(http.StatusOK, `{"json":{"errors":[]}}`), nil
	})
	if err := c.SetFlair(context.Background(), "uhcmatches", "t3_1", "upcoming_match", "upcoming match"); err != nil {
		t.Fatalf("set flair: %v", err)
	}
}

func TestRemove(t *testing.T) {
	c := clientWithTransport(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/api/remove" {
			t.Errorf("path = %q", r.URL.Path)
		}
		form := readForm(t, r)
		if form.Get("id") != "t3_1" || form.Get("spam") != "false" {
			t.Errorf("form = %v", form)
		}
		return response(http.StatusOK, `{}`), nil
	})
	if err := c.Remove(context.Background(), "t3_1", false); err != nil {
		t.Fatalf("remove: %v", err)
	}
}

func TestRemove_Forbidden(t *testing.T) {
	c := clientWithTransport(t, func(_ *http.Request) (*http.Response, error) {
		return response(http.StatusForbidden, `{"message": "Forbidden", "error": 403}`), nil
	})
	err := c.Remove(context.Background(), "t3_1", false)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("err = %v, want 403 APIError", err)
	}
}

func TestNewOAuthHTTPClient_PasswordGrant(t *testing.T) {
	var tokenCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/access_token":
			tokenCalls.Add(1)
			user, pass, ok := r.BasicAuth()
			if !ok || user != "client" || pass != "secret" {
				t.Errorf("basic auth = %q/%q", user, pass)
			}
			if err := r.ParseForm(); err != nil {
				t.Errorf("parse form: %v", err)
			}
			if r.Form.Get("grant_type") != "password" || r.Form.Get("username") != "modbot" {
				t.Errorf("token form = %v", r.Form)
			}
			if ua := r.Header.Get("User-Agent"); ua != "flaircheck-test/1.0" {
				t.Errorf("token user-agent = %q", ua)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"access_token":"tok123","token_type":"bearer","expires_in":3600}`)
		case "/r/sub/search":
			if got := r.Header.Get("Authorization"); got != "Bearer tok123" {
				t.Errorf("authorization = %q", got)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"data":{"children":[],"after":null}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	httpClient, err := NewOAuthHTTPClient(context.Background(), Credentials{
		ClientID:     "client",
		ClientSecret: "secret",
		Username:     "modbot",
		Password:     "hunter2",
		TokenURL:     srv.URL + "/api/v1/access_token",
		UserAgent:    "flaircheck-test/1.0",
		Timeout:      5 * time.Second,
	})
	if err != nil {
		t.Fatalf("oauth client: %v", err)
	}

	c, err := New(httpClient, Options{BaseURL: srv.URL, UserAgent: "flaircheck-test/1.0", Throttle: time.Millisecond})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := c.Search(context.Background(), SearchParams{Subreddit: "sub"}); err != nil {
			t.Fatalf("search: %v", err)
		}
	}
	if n := tokenCalls.Load(); n != 1 {
		t.Errorf("token requests = %d, want 1 (token reused)", n)
	}
}

func TestNewOAuthHTTPClient_MissingCredentials(t *testing.T) {
	if _, err := NewOAuthHTTPClient(context.Background(), Credentials{ClientID: "id"}); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}
